package streamfs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/streamfs/internal/models"
)

func created(uri string) models.ChangeEvent {
	return models.ChangeEvent{Type: models.ChangeCreated, URI: uri}
}

func TestBatcherFlush(t *testing.T) {
	b := NewBatcher(0)
	var got [][]models.ChangeEvent
	b.Subscribe(func(evs []models.ChangeEvent) { got = append(got, evs) })

	b.Push(created("/a"))
	b.Push(created("/b"), created("/c"))
	b.Push()
	assert.Equal(t, 3, b.Pending())
	assert.Empty(t, got)

	b.Flush()
	require.Len(t, got, 1)
	assert.Equal(t, []models.ChangeEvent{created("/a"), created("/b"), created("/c")}, got[0])
	assert.Zero(t, b.Pending())

	b.Flush()
	assert.Len(t, got, 1)
}

func TestBatcherDebounce(t *testing.T) {
	b := NewBatcher(20 * time.Millisecond)
	defer b.Stop()

	var (
		mu  sync.Mutex
		got [][]models.ChangeEvent
	)
	b.Subscribe(func(evs []models.ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evs)
	})

	b.Push(created("/a"))
	b.Push(created("/b"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Len(t, got[0], 2)
	mu.Unlock()
}

func TestBatcherUnsubscribe(t *testing.T) {
	b := NewBatcher(0)
	var first, second int
	unsub := b.Subscribe(func(evs []models.ChangeEvent) { first += len(evs) })
	b.Subscribe(func(evs []models.ChangeEvent) { second += len(evs) })

	b.Push(created("/a"))
	b.Flush()
	unsub()
	b.Push(created("/b"))
	b.Flush()

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestBatcherStopDropsEvents(t *testing.T) {
	b := NewBatcher(time.Hour)
	var got int
	b.Subscribe(func(evs []models.ChangeEvent) { got += len(evs) })

	b.Push(created("/a"))
	b.Stop()
	b.Flush()
	assert.Zero(t, got)
	assert.Zero(t, b.Pending())
}
