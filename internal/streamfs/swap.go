package streamfs

import "sync"

// swapField sets *field to next, runs push, and restores the previous value
// if push fails. mu guards field.
func swapField[T any](mu sync.Locker, field *T, next T, push func() error) error {
	mu.Lock()
	prev := *field
	*field = next
	mu.Unlock()

	if err := push(); err != nil {
		mu.Lock()
		*field = prev
		mu.Unlock()
		return err
	}
	return nil
}
