package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// CreateConversation inserts a new conversation row.
func (s *Store) CreateConversation(ctx context.Context, title, metadataJSON string) (*Conversation, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (title, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, nullableString(title), nullableString(metadataJSON), now, now)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return s.GetConversation(ctx, id)
}

// GetConversation returns a conversation by id, or nil if it does not exist.
func (s *Store) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, metadata_json, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// AppendMessage assigns the next seq for conversationID, inserts the message,
// and bumps conversation.updated_at, all within one transaction (spec §4.5).
func (s *Store) AppendMessage(ctx context.Context, conversationID int64, role MessageRole, content string, requestID *int64) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("append message: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("append message: max seq: %w", err)
	}
	seq := maxSeq.Int64 + 1

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, created_at, seq, request_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, conversationID, string(role), content, now, seq, nullableInt64Ptr(requestID))
	if err != nil {
		return nil, fmt.Errorf("append message: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID); err != nil {
		return nil, fmt.Errorf("append message: touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("append message: commit: %w", err)
	}

	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
		Seq:            seq,
		RequestID:      requestID,
	}, nil
}

// ListMessages returns the most recent limit messages for a conversation,
// ordered oldest-first (the order upstream providers expect as history). A
// limit <= 0 returns the full history.
func (s *Store) ListMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	query := `SELECT id, conversation_id, role, content, created_at, seq, request_id
		FROM messages WHERE conversation_id = ? ORDER BY seq DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("list messages: scan: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	// Reverse: query ran newest-first to make LIMIT take the tail window.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// UpsertRequest implements spec §4.5: select by (conversationID, inputHash),
// insert on miss. A concurrent insert that loses the UNIQUE(conversation_id,
// input_hash) race is resolved by reselecting the winner. created reports
// whether this call performed the insert.
func (s *Store) UpsertRequest(ctx context.Context, conversationID, messageID int64, model, paramsJSON, inputHash string) (req *Request, created bool, err error) {
	if existing, err := s.GetRequestByHash(ctx, conversationID, inputHash); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (conversation_id, message_id, model, params_json, input_hash, status, tries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, conversationID, messageID, model, nullableString(paramsJSON), inputHash, string(StatusQueued), now, now)
	if err != nil {
		if isUniqueConstraintErr(err) {
			existing, getErr := s.GetRequestByHash(ctx, conversationID, inputHash)
			if getErr != nil {
				return nil, false, getErr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("upsert request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("upsert request: %w", err)
	}
	created_, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return created_, true, nil
}

// GetRequest returns a request by id, or nil if it does not exist.
func (s *Store) GetRequest(ctx context.Context, id int64) (*Request, error) {
	row := s.db.QueryRowContext(ctx, requestSelectColumns+` WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

// GetRequestByHash returns the request matching (conversationID, inputHash),
// or nil if none exists.
func (s *Store) GetRequestByHash(ctx context.Context, conversationID int64, inputHash string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, requestSelectColumns+` WHERE conversation_id = ? AND input_hash = ?`, conversationID, inputHash)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request by hash: %w", err)
	}
	return r, nil
}

// MarkStarted bumps tries and transitions the request to in_progress with
// started_at=now, immediately before the upstream call is issued.
func (s *Store) MarkStarted(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests SET status = ?, tries = tries + 1, started_at = ?, updated_at = ?
		WHERE id = ?
	`, string(StatusInProgress), now, now, id)
	if err != nil {
		return fmt.Errorf("mark started: %w", err)
	}
	return nil
}

// SaveInProgress persists the upstream job handle and (re)sets status to
// in_progress, used when the job is accepted but not yet complete.
func (s *Store) SaveInProgress(ctx context.Context, id int64, providerResponseID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests SET provider_response_id = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, providerResponseID, string(StatusInProgress), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("save in progress: %w", err)
	}
	return nil
}

// SaveCompletion persists a terminal successful result.
func (s *Store) SaveCompletion(ctx context.Context, id int64, outputText, rawJSON, usageJSON string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests SET status = ?, output_text = ?, raw_json = ?, usage_json = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, string(StatusCompleted), outputText, nullableString(rawJSON), nullableString(usageJSON), now, now, id)
	if err != nil {
		return fmt.Errorf("save completion: %w", err)
	}
	return nil
}

// SaveFailure persists a terminal failed/cancelled/expired result.
func (s *Store) SaveFailure(ctx context.Context, id int64, status RequestStatus, errorJSON string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests SET status = ?, error_json = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, string(status), errorJSON, now, now, id)
	if err != nil {
		return fmt.Errorf("save failure: %w", err)
	}
	return nil
}

const requestSelectColumns = `
	SELECT id, conversation_id, message_id, model, params_json, input_hash,
		provider_response_id, status, error_json, tries, started_at, completed_at,
		output_text, raw_json, usage_json, created_at, updated_at
	FROM requests`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		r                  Request
		status             string
		paramsJSON         sql.NullString
		providerResponseID sql.NullString
		errorJSON          sql.NullString
		startedAt          sql.NullTime
		completedAt        sql.NullTime
		outputText         sql.NullString
		rawJSON            sql.NullString
		usageJSON          sql.NullString
	)
	if err := row.Scan(
		&r.ID, &r.ConversationID, &r.MessageID, &r.Model, &paramsJSON, &r.InputHash,
		&providerResponseID, &status, &errorJSON, &r.Tries, &startedAt, &completedAt,
		&outputText, &rawJSON, &usageJSON, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Status = RequestStatus(status)
	r.ParamsJSON = paramsJSON.String
	r.ProviderResponseID = providerResponseID.String
	r.ErrorJSON = errorJSON.String
	r.OutputText = outputText.String
	r.RawJSON = rawJSON.String
	r.UsageJSON = usageJSON.String
	if startedAt.Valid {
		r.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return &r, nil
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		c        Conversation
		title    sql.NullString
		metadata sql.NullString
	)
	if err := row.Scan(&c.ID, &title, &metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Title = title.String
	c.Metadata = metadata.String
	return &c, nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		m         Message
		role      string
		requestID sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt, &m.Seq, &requestID); err != nil {
		return nil, err
	}
	m.Role = MessageRole(role)
	if requestID.Valid {
		id := requestID.Int64
		m.RequestID = &id
	}
	return &m, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullableInt64Ptr(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}

func isUniqueConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
