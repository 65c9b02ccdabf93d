package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankcore/internal/domain"
)

func TestNotifyPersistsAndFansOut(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, _ := e.client(t, "alice@example.com")

	ch, cancel := e.notification.Subscribe(alice.ID)
	defer cancel()
	other, cancelOther := e.notification.Subscribe("someone-else")
	defer cancelOther()

	require.NoError(t, e.notification.Notify(ctx, alice.ID, domain.NotifyMessage, "Hello", "world"))

	select {
	case n := <-ch:
		assert.Equal(t, "Hello", n.Title)
		assert.NotEmpty(t, n.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the notification")
	}
	select {
	case n := <-other:
		t.Fatalf("unexpected notification %+v", n)
	default:
	}

	unread, err := e.notification.List(ctx, alice.ID, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	require.NoError(t, e.notification.MarkRead(ctx, alice.ID, unread[0].ID))
	unread, err = e.notification.List(ctx, alice.ID, true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	assert.ErrorIs(t, e.notification.MarkRead(ctx, "someone-else", "missing"), domain.ErrNotFound)
	assert.ErrorIs(t, e.notification.Notify(ctx, alice.ID, domain.NotifyMessage, " ", ""), domain.ErrInvalidInput)
}

func TestSlowSubscriberNeverBlocksNotify(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, _ := e.client(t, "alice@example.com")

	ch, cancel := e.notification.Subscribe(alice.ID)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*3; i++ {
			_ = e.notification.Notify(ctx, alice.ID, domain.NotifyMessage, "ping", "")
		}
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBuffer)

	cancel()
	cancel()
	_, open := <-drain(ch)
	assert.False(t, open)
}

// drain empties ch and returns it once closed.
func drain(ch <-chan domain.Notification) <-chan domain.Notification {
	for range ch {
	}
	return ch
}
