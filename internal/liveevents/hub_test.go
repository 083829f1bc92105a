package liveevents

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishKeepsBoundedBacklog(t *testing.T) {
	hub := NewHub()
	subject := snowflake.ID(7)

	for i := 0; i < DefaultBacklogSize+5; i++ {
		hub.Publish(subject, Event{ReadingID: int64(i)})
	}

	sub, backlog, err := hub.Subscribe(subject)
	require.NoError(t, err)
	defer sub.Close()

	require.Len(t, backlog, DefaultBacklogSize)
	assert.Equal(t, int64(5), backlog[0].ReadingID)
	assert.Equal(t, int64(DefaultBacklogSize+4), backlog[len(backlog)-1].ReadingID)
}

func TestSubscribersOnlySeeTheirSubject(t *testing.T) {
	hub := NewHub()
	mine, _, err := hub.Subscribe(snowflake.ID(1))
	require.NoError(t, err)
	defer mine.Close()

	hub.Publish(snowflake.ID(2), Event{ReadingID: 99})
	hub.Publish(snowflake.ID(1), Event{ReadingID: 1})

	got := <-mine.Events()
	assert.Equal(t, int64(1), got.ReadingID)
	select {
	case extra := <-mine.Events():
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe(snowflake.ID(3))
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < DefaultSubscriberBuffer*3; i++ {
		hub.Publish(snowflake.ID(3), Event{ReadingID: int64(i)})
	}
	assert.Len(t, sub.Events(), DefaultSubscriberBuffer)
}

func TestNilHubSubscribe(t *testing.T) {
	var hub *Hub
	_, _, err := hub.Subscribe(snowflake.ID(1))
	assert.ErrorIs(t, err, ErrHubUnavailable)
	hub.Publish(snowflake.ID(1), Event{})
}
