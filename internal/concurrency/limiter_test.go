package concurrency

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelbridge/gateway/internal/modelregistry"
)

func TestLimiterCapsConcurrency(t *testing.T) {
	l := New(Config{Capacities: map[modelregistry.Provider]int64{
		modelregistry.ProviderOpenAI: 2,
	}})

	var inFlight int32
	var maxSeen int32
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		go func() {
			release, err := l.Acquire(context.Background(), modelregistry.ProviderOpenAI)
			if err != nil {
				t.Errorf("acquire: %v", err)
				done <- struct{}{}
				return
			}
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if cur <= old || atomic.CompareAndSwapInt32(&maxSeen, old, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			release()
			done <- struct{}{}
		}()
	}

	for i := 0; i < 5; i++ {
		<-done
	}

	if got := atomic.LoadInt32(&maxSeen); got > 2 {
		t.Errorf("observed %d concurrent acquisitions, cap was 2", got)
	}
}

func TestLimiterAcquireRespectsCancellation(t *testing.T) {
	l := New(Config{Capacities: map[modelregistry.Provider]int64{
		modelregistry.ProviderGoogle: 1,
	}})

	release, err := l.Acquire(context.Background(), modelregistry.ProviderGoogle)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Acquire(ctx, modelregistry.ProviderGoogle); err == nil {
		t.Fatal("expected context-cancelled error on blocked acquire")
	}
}

func TestLimiterUnknownProviderNoop(t *testing.T) {
	l := New(DefaultConfig())
	release, err := l.Acquire(context.Background(), modelregistry.Provider("unknown"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()
}
