package events

import (
	"context"
	"testing"
	"time"

	"promo-console-api/internal/models"
)

func TestPublish_ReachesSubscriber(t *testing.T) {
	m := NewManager(true)

	got := make(chan Event, 1)
	m.Subscribe(EventDrawCompleted, func(ctx context.Context, e Event) error {
		got <- e
		return nil
	})

	winner := models.Participant{ID: "w1"}
	m.PublishDrawCompleted(context.Background(), "acct-1", "p1", winner, time.Now())

	select {
	case e := <-got:
		data, ok := e.Data.(DrawCompletedData)
		if !ok {
			t.Fatalf("Unexpected event data type %T", e.Data)
		}
		if data.AccountID != "acct-1" || data.Winner.ID != "w1" {
			t.Errorf("Unexpected event data: %+v", data)
		}
	case <-time.After(time.Second):
		t.Fatal("Subscriber was not invoked")
	}
}

func TestPublish_Disabled(t *testing.T) {
	m := NewManager(false)

	called := make(chan struct{}, 1)
	m.Subscribe(EventContentExpired, func(ctx context.Context, e Event) error {
		called <- struct{}{}
		return nil
	})

	m.PublishContentExpired(context.Background(), "acct-1", []string{"a"})

	select {
	case <-called:
		t.Fatal("Disabled manager must not dispatch events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestShutdown_DropsSubscribers(t *testing.T) {
	m := NewManager(true)

	called := make(chan struct{}, 1)
	m.Subscribe(EventPromotionDeactivated, func(ctx context.Context, e Event) error {
		called <- struct{}{}
		return nil
	})

	m.Shutdown()
	m.PublishPromotionDeactivated(context.Background(), "acct-1", "p1")

	select {
	case <-called:
		t.Fatal("Shut-down manager must not dispatch events")
	case <-time.After(50 * time.Millisecond):
	}
}
