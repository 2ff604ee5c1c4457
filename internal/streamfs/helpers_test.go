package streamfs

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/streamfs/internal/blobcache"
	"github.com/TheMichaelB/streamfs/internal/config"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/test/testutil"
)

type eventLog struct {
	mu      sync.Mutex
	batches [][]models.ChangeEvent
}

func (l *eventLog) record(evs []models.ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = append(l.batches, evs)
}

func (l *eventLog) all() []models.ChangeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.ChangeEvent
	for _, b := range l.batches {
		out = append(out, b...)
	}
	return out
}

func (l *eventLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.batches)
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = nil
}

type fixture struct {
	fs       *FS
	user     *UserNode
	backend  *testutil.Backend
	hooks    *testutil.HookRecorder
	prompter *testutil.MockPrompter
	uploads  *testutil.RecordingUploader
	events   *eventLog
}

type fixtureOption func(*Options)

func withCache(c blobcache.Cache) fixtureOption {
	return func(o *Options) { o.Cache = c }
}

func withDebounce(d time.Duration) fixtureOption {
	return func(o *Options) { o.Transfer.ChangeDebounce = d }
}

func newFixture(t *testing.T, inputs ...*models.Input) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.NewBackend(t, inputs...))
}

func newFixtureOn(t *testing.T, backend *testutil.Backend, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		backend:  backend,
		hooks:    testutil.NewHookRecorder(),
		prompter: &testutil.MockPrompter{},
		uploads:  &testutil.RecordingUploader{},
		events:   &eventLog{},
	}

	o := Options{
		Inputs: backend.Inputs,
		Blobs:  backend.Blobs,
		Hooks: Hooks{
			Prompter: f.prompter,
			Open:     f.hooks.Open,
			Replaced: f.hooks.Replaced,
			Progress: f.hooks.Progress,
		},
		Logger: testutil.NewTestLogger(),
		Transfer: config.TransferConfig{
			ChunkSize:     DefaultChunkSize,
			MaxBodySize:   DefaultMaxBodySize,
			MaxConcurrent: DefaultMaxConcurrent,
			ImageHost:     "images",
		},
		Uploader: func(ctx context.Context, source File, target *url.URL) error {
			data, err := source.Data(ctx)
			if err != nil {
				return err
			}
			return f.uploads.Upload(ctx, source.URI(), data, target)
		},
		Now: testutil.FixedClock(testutil.Epoch),
	}
	for _, opt := range opts {
		opt(&o)
	}

	f.fs = New(o)
	t.Cleanup(func() { f.fs.Close() })

	f.fs.Subscribe(f.events.record)
	f.user = f.fs.AddUser(testutil.Login)
	f.fs.Flush()
	f.events.reset()
	return f
}

func (f *fixture) input(t *testing.T, title string) *InputNode {
	t.Helper()
	in, err := f.fs.LookupInput(context.Background(), "/"+testutil.Login+"/"+title)
	require.NoError(t, err)
	return in
}

func (f *fixture) flushed() []models.ChangeEvent {
	f.fs.Flush()
	evs := f.events.all()
	f.events.reset()
	return evs
}

func names(entries []DirEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}
