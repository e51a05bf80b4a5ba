package store

import "time"

// RequestStatus is the Request state-machine value (spec §4.4).
type RequestStatus string

const (
	StatusQueued     RequestStatus = "queued"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
	StatusCancelled  RequestStatus = "cancelled"
	StatusExpired    RequestStatus = "expired"
)

// MessageRole is the role of a persisted conversation message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Conversation is a persistent thread of Messages and Requests.
type Conversation struct {
	ID        int64
	Title     string
	Metadata  string // raw JSON, empty string if absent
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn of conversation content.
type Message struct {
	ID             int64
	ConversationID int64
	Role           MessageRole
	Content        string
	CreatedAt      time.Time
	Seq            int64
	RequestID      *int64
}

// Request is one upstream job tracked against a conversation.
type Request struct {
	ID             int64
	ConversationID int64
	MessageID      int64

	Model      string
	ParamsJSON string
	InputHash  string

	ProviderResponseID string
	Status             RequestStatus

	Tries       int
	StartedAt   *time.Time
	CompletedAt *time.Time
	ErrorJSON   string

	OutputText string
	RawJSON    string
	UsageJSON  string

	CreatedAt time.Time
	UpdatedAt time.Time
}
