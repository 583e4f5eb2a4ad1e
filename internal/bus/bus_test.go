package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stratus-console/stratus/internal/bus"
	_ "github.com/stratus-console/stratus/testing"
)

func newBus(t *testing.T) *bus.Bus {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return bus.New(client, "", nil)
}

func TestPublishReachesSubscriber(t *testing.T) {
	b := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan bus.Event, 1)
	b.Subscribe(ctx, func(ctx context.Context, ev bus.Event) {
		received <- ev
	})
	// Give the subscriber goroutine time to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	want := bus.Event{Entity: bus.EntityRole, EntityID: 3, Action: "grant", ActorID: 1, OperateID: 17}
	if err := b.Publish(ctx, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSubscriberStopsOnCancel(t *testing.T) {
	b := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	received := make(chan bus.Event, 4)
	b.Subscribe(ctx, func(ctx context.Context, ev bus.Event) {
		received <- ev
	})
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	_ = b.Publish(context.Background(), bus.Event{Entity: bus.EntityUser, EntityID: 1, Action: "create"})
	select {
	case ev := <-received:
		t.Fatalf("expected no delivery after cancel, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
