package streamfs

import (
	"context"
	"time"

	"github.com/TheMichaelB/streamfs/internal/blobcache"
	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/transport"
)

// Transfer defaults.
const (
	DefaultChunkSize     = 64 * 1024
	DefaultMaxBodySize   = 10 * 1024 * 1024
	DefaultMaxConcurrent = 4
	DefaultDebounce      = 5 * time.Millisecond

	// titleRepairDelay lets a content write settle before the document
	// node is re-keyed under its new title.
	titleRepairDelay = 50 * time.Millisecond
)

// Prompter asks the user to confirm actions. Implementations may block.
type Prompter interface {
	ConfirmDelete(ctx context.Context, uri string) (bool, error)
	// OfferConvertToDraft is raised when a published Input is written. It
	// reports whether the user asked for the conversion.
	OfferConvertToDraft(ctx context.Context, uri string) (bool, error)
}

// Hooks are host callbacks. Every field is optional.
type Hooks struct {
	Prompter Prompter
	// Open is called with the content file URI of a newly created Input.
	Open func(uri string)
	// Replaced is called when a node is re-keyed under a new URI.
	Replaced func(oldURI, newURI string)
	// Progress reports upload progress of one blob.
	Progress func(uri string, sent, total int64)
}

// env is shared by every node of one filesystem.
type env struct {
	inputs transport.InputsClient
	blobs  transport.BlobClient
	cache  blobcache.Cache
	hooks  Hooks
	logger *events.Logger

	chunkSize     int
	maxBodySize   int64
	maxConcurrent int
	now           func() time.Time

	emit func(...models.ChangeEvent)
}

func (e *env) inputsClient() (transport.InputsClient, error) {
	if e.inputs == nil {
		return nil, models.Unavailable(models.ErrNotConnected, "inputs service")
	}
	return e.inputs, nil
}

func (e *env) blobClient() (transport.BlobClient, error) {
	if e.blobs == nil {
		return nil, models.Unavailable(models.ErrNotConnected, "bytestream service")
	}
	return e.blobs, nil
}

func (e *env) notify(evs ...models.ChangeEvent) {
	if e.emit != nil {
		e.emit(evs...)
	}
}

func (e *env) confirmDelete(ctx context.Context, uri string) (bool, error) {
	if e.hooks.Prompter == nil {
		return false, nil
	}
	return e.hooks.Prompter.ConfirmDelete(ctx, uri)
}

func (e *env) offerConvertToDraft(ctx context.Context, uri string) (bool, error) {
	if e.hooks.Prompter == nil {
		return false, nil
	}
	return e.hooks.Prompter.OfferConvertToDraft(ctx, uri)
}

func (e *env) progress(uri string, sent, total int64) {
	if e.hooks.Progress != nil {
		e.hooks.Progress(uri, sent, total)
	}
}

func (e *env) replaced(oldURI, newURI string) {
	if e.hooks.Replaced != nil {
		e.hooks.Replaced(oldURI, newURI)
	}
}

func (e *env) open(uri string) {
	if e.hooks.Open != nil {
		time.AfterFunc(0, func() { e.hooks.Open(uri) })
	}
}
