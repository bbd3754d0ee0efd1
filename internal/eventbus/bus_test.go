package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hearthai/hearth/pkg/models"
)

func TestPublishFanOutIsolatesFailures(t *testing.T) {
	bus := New(nil)

	var h2Ran, h3Ran bool
	bus.Subscribe(models.EventMessageCreated, func(ctx context.Context, e models.Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(models.EventMessageCreated, func(ctx context.Context, e models.Event) error {
		h2Ran = true
		return nil
	})
	bus.Subscribe(models.EventMessageCreated, func(ctx context.Context, e models.Event) error {
		h3Ran = true
		return nil
	})

	bus.Publish(context.Background(), models.Event{Kind: models.EventMessageCreated})

	if !h2Ran || !h3Ran {
		t.Fatalf("expected sibling handlers to run despite a failing handler")
	}
	if bus.FailureCount(models.EventMessageCreated) != 1 {
		t.Fatalf("expected 1 recorded failure, got %d", bus.FailureCount(models.EventMessageCreated))
	}
}

func TestPerKindFIFOPerPublisher(t *testing.T) {
	bus := New(nil)
	var mu sync.Mutex
	var order []int

	bus.Subscribe(models.EventJobUpdated, func(ctx context.Context, e models.Event) error {
		mu.Lock()
		order = append(order, e.Payload.(int))
		mu.Unlock()
		return nil
	})

	for i := 0; i < 50; i++ {
		bus.Publish(context.Background(), models.Event{Kind: models.EventJobUpdated, Publisher: "p1", Payload: i})
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 50 {
		t.Fatalf("expected 50 deliveries, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v at position %d", v, i)
		}
	}
}

func TestUnsubscribeStopsFutureDeliveries(t *testing.T) {
	bus := New(nil)
	calls := 0
	token := bus.Subscribe(models.EventGUIAction, func(ctx context.Context, e models.Event) error {
		calls++
		return nil
	})
	bus.Publish(context.Background(), models.Event{Kind: models.EventGUIAction})
	bus.Unsubscribe(models.EventGUIAction, token)
	bus.Publish(context.Background(), models.Event{Kind: models.EventGUIAction})

	if calls != 1 {
		t.Fatalf("expected exactly 1 delivery before unsubscribe, got %d", calls)
	}
}

func TestLogKindDoesNotRecurse(t *testing.T) {
	bus := New(nil)
	var nested int
	bus.Subscribe(models.EventLogGeneric, func(ctx context.Context, e models.Event) error {
		bus.Publish(ctx, models.Event{Kind: models.EventLogGeneric})
		nested++
		return nil
	})
	bus.Publish(context.Background(), models.Event{Kind: models.EventLogGeneric})
	if nested != 1 {
		t.Fatalf("expected the nested log publish to be suppressed, handler ran %d times", nested)
	}
}

func TestPublishDoesNotBlockOnSlowHandler(t *testing.T) {
	bus := New(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	bus.Subscribe(models.EventToolExecute, func(ctx context.Context, e models.Event) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		bus.Publish(context.Background(), models.Event{Kind: models.EventToolExecute})
		close(done)
	}()

	<-started
	select {
	case <-done:
		t.Fatalf("publish returned before the handler finished, expected sequential await within the publish call")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-done
}
