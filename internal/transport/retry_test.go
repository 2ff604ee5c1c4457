package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
)

func newRetryClient(maxRetries int, delay time.Duration) *HTTPClient {
	var buf bytes.Buffer
	return &HTTPClient{
		maxRetries: maxRetries,
		retryDelay: delay,
		logger:     events.NewTestLogger(events.DebugLevel, "json", &buf),
	}
}

func TestRetryWithBackoff(t *testing.T) {
	attempts := 0
	startTime := time.Now()
	client := newRetryClient(3, 50*time.Millisecond)

	err := client.retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
	// 50ms then 100ms
	assert.GreaterOrEqual(t, time.Since(startTime), 150*time.Millisecond)
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	attempts := 0
	client := newRetryClient(5, 100*time.Millisecond)

	err := client.retry(ctx, func() error {
		attempts++
		return errors.New("error")
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, attempts, 3)
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	client := newRetryClient(2, 10*time.Millisecond)

	err := client.retry(context.Background(), func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.ErrorContains(t, err, "max retries exceeded")
	assert.Equal(t, 3, attempts) // maxRetries + 1
}

func TestRetryStopsOnAPIError(t *testing.T) {
	attempts := 0
	client := newRetryClient(3, 10*time.Millisecond)

	err := client.retry(context.Background(), func() error {
		attempts++
		return &models.APIError{StatusCode: 404, Code: "not_found"}
	})

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 1, attempts)
}

func TestRetryStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	client := newRetryClient(3, 10*time.Millisecond)

	err := client.retry(ctx, func() error {
		attempts++
		return errors.New("some error")
	})

	assert.ErrorContains(t, err, "some error")
	assert.Equal(t, 1, attempts)
}

func TestRetryableStatuses(t *testing.T) {
	client := newRetryClient(0, 0)
	assert.True(t, client.isRetryable(429))
	assert.True(t, client.isRetryable(503))
	assert.False(t, client.isRetryable(404))
	assert.False(t, client.isRetryable(200))
}
