package streamfs

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSwapField(t *testing.T) {
	var mu sync.Mutex
	field := "old"

	var seen string
	err := swapField(&mu, &field, "new", func() error {
		seen = field
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "new", seen, "push observes the optimistic value")
	assert.Equal(t, "new", field)

	boom := errors.New("boom")
	err = swapField(&mu, &field, "newer", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "new", field)
}
