package events_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/streamfs/internal/events"
)

func TestFromContext(t *testing.T) {
	logger := events.FromContext(context.Background())
	assert.NotNil(t, logger)
}

func TestWithLogger(t *testing.T) {
	logger := events.Discard()

	ctx := events.WithLogger(context.Background(), logger)

	assert.Same(t, logger, events.FromContext(ctx))
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, events.GetRequestID(ctx))
	assert.Empty(t, events.GetLogin(ctx))
	assert.Empty(t, events.GetInputID(ctx))

	ctx = events.WithRequestID(ctx, "req-123")
	ctx = events.WithLogin(ctx, "octocat")
	ctx = events.WithInputID(ctx, "in-1")

	assert.Equal(t, "req-123", events.GetRequestID(ctx))
	assert.Equal(t, "octocat", events.GetLogin(ctx))
	assert.Equal(t, "in-1", events.GetInputID(ctx))
}

func TestSetDefault(t *testing.T) {
	previous := events.Default()
	t.Cleanup(func() { events.SetDefault(previous) })

	custom := events.Discard()
	events.SetDefault(custom)

	assert.Same(t, custom, events.FromContext(context.Background()))
}
