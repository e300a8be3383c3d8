package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/config"
)

func newTestBus(t *testing.T, url string) *Bus {
	t.Helper()
	b, err := New(config.BrokerConfig{
		URL:         url,
		Concurrency: 2,
		TaskTimeout: 5 * time.Second,
	}, WithRetryBaseDelay(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(b.Stop)
	return b
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPublishAndConsume_Memory(t *testing.T) {
	b := newTestBus(t, "memory://")

	var mu sync.Mutex
	var got []string
	b.Register("greet", func(ctx context.Context, payload []byte) error {
		var name string
		if err := json.Unmarshal(payload, &name); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, name)
		mu.Unlock()
		return nil
	})
	b.Start(context.Background())

	require.NoError(t, b.Publish(context.Background(), "greet", "alice"))
	require.NoError(t, b.Publish(context.Background(), "greet", "bob"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
	mu.Lock()
	assert.ElementsMatch(t, []string{"alice", "bob"}, got)
	mu.Unlock()
}

func TestRetryUntilSuccess(t *testing.T) {
	b := newTestBus(t, "memory://")

	var attempts atomic.Int32
	b.Register("flaky", func(ctx context.Context, payload []byte) error {
		if attempts.Add(1) < 3 {
			return fmt.Errorf("transient failure")
		}
		return nil
	})
	b.Start(context.Background())

	require.NoError(t, b.Publish(context.Background(), "flaky", nil))
	waitFor(t, func() bool { return attempts.Load() == 3 })
}

func TestRetryBudgetExhausted(t *testing.T) {
	b := newTestBus(t, "memory://")

	// One initial execution plus three retries.
	const wantAttempts = 4

	var attempts atomic.Int32
	done := make(chan struct{})
	b.Register("broken", func(ctx context.Context, payload []byte) error {
		if attempts.Add(1) == wantAttempts {
			defer close(done)
		}
		return fmt.Errorf("still broken")
	})
	b.Start(context.Background())

	require.NoError(t, b.Publish(context.Background(), "broken", nil))
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("task was not retried to exhaustion")
	}
	// Give the worker a moment to confirm no extra attempt follows.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(wantAttempts), attempts.Load())
}

func TestFatalErrorNotRetried(t *testing.T) {
	b := newTestBus(t, "memory://")

	var attempts atomic.Int32
	b.Register("fatal", func(ctx context.Context, payload []byte) error {
		attempts.Add(1)
		return apperr.BadRequest("payload cannot be processed").AsFatal()
	})
	b.Start(context.Background())

	require.NoError(t, b.Publish(context.Background(), "fatal", nil))
	waitFor(t, func() bool { return attempts.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestPanicIsFatal(t *testing.T) {
	b := newTestBus(t, "memory://")

	var attempts atomic.Int32
	b.Register("panics", func(ctx context.Context, payload []byte) error {
		attempts.Add(1)
		panic("boom")
	})
	b.Start(context.Background())

	require.NoError(t, b.Publish(context.Background(), "panics", nil))
	waitFor(t, func() bool { return attempts.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load(), "a panicking handler must not be retried")
}

func TestUnknownTaskIsDropped(t *testing.T) {
	b := newTestBus(t, "memory://")
	var handled atomic.Int32
	b.Register("known", func(ctx context.Context, payload []byte) error {
		handled.Add(1)
		return nil
	})
	b.Start(context.Background())

	require.NoError(t, b.Publish(context.Background(), "unknown", nil))
	require.NoError(t, b.Publish(context.Background(), "known", nil))
	waitFor(t, func() bool { return handled.Load() == 1 })
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	b := newTestBus(t, "memory://")
	b.Register("once", func(ctx context.Context, payload []byte) error { return nil })
	assert.Panics(t, func() {
		b.Register("once", func(ctx context.Context, payload []byte) error { return nil })
	})
}

func TestPublishAndConsume_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	b := newTestBus(t, "redis://"+mr.Addr())

	type storePayload struct {
		CompletionID string `json:"completion_id"`
	}
	var mu sync.Mutex
	var got []string
	b.Register("store_completion", func(ctx context.Context, payload []byte) error {
		var p storePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, p.CompletionID)
		mu.Unlock()
		return nil
	})
	b.Start(context.Background())

	require.NoError(t, b.Publish(context.Background(), "store_completion", storePayload{CompletionID: "c1"}))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "c1"
	})
}

func TestRedisSurvivesPublisher(t *testing.T) {
	// A task published before any consumer starts is still delivered.
	mr := miniredis.RunT(t)

	publisher := newTestBus(t, "redis://"+mr.Addr())
	require.NoError(t, publisher.Publish(context.Background(), "ping", 1))
	publisher.Stop()

	consumer := newTestBus(t, "redis://"+mr.Addr())
	var handled atomic.Int32
	consumer.Register("ping", func(ctx context.Context, payload []byte) error {
		handled.Add(1)
		return nil
	})
	consumer.Start(context.Background())
	waitFor(t, func() bool { return handled.Load() == 1 })
}

func TestUnsupportedBrokerScheme(t *testing.T) {
	_, err := New(config.BrokerConfig{URL: "kafka://localhost"})
	require.Error(t, err)
}
