package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToSubscribers(t *testing.T) {
	b := NewBroker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, 4)
	require.NoError(t, b.Publish(ctx, Event{Type: JobCreated, JobID: "j1"}))

	select {
	case e := <-ch:
		assert.Equal(t, JobCreated, e.Type)
		assert.Equal(t, "j1", string(e.JobID))
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBrokerDropsForFullSubscriber(t *testing.T) {
	b := NewBroker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, 1)
	require.NoError(t, b.Publish(ctx, Event{Type: JobCreated}))
	require.NoError(t, b.Publish(ctx, Event{Type: JobCancelled}))

	e := <-ch
	assert.Equal(t, JobCreated, e.Type)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %s", extra.Type)
	default:
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	b := NewBroker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx, 1)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("down") }

func TestMultiReturnsFirstError(t *testing.T) {
	b := NewBroker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, 1)

	err := Multi{failing{}, b}.Publish(ctx, Event{Type: JobPaid})
	assert.EqualError(t, err, "down")
	assert.Equal(t, JobPaid, (<-ch).Type)
}
