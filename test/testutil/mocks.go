package testutil

import (
	"context"
	"net/url"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockPrompter answers confirmation prompts from testify expectations.
type MockPrompter struct {
	mock.Mock
}

// ConfirmDelete implements the prompter contract.
func (m *MockPrompter) ConfirmDelete(ctx context.Context, uri string) (bool, error) {
	args := m.Called(ctx, uri)
	return args.Bool(0), args.Error(1)
}

// OfferConvertToDraft implements the prompter contract.
func (m *MockPrompter) OfferConvertToDraft(ctx context.Context, uri string) (bool, error) {
	args := m.Called(ctx, uri)
	return args.Bool(0), args.Error(1)
}

// HookRecorder captures host callbacks.
type HookRecorder struct {
	mu       sync.Mutex
	opened   []string
	replaced [][2]string
	progress map[string]int64
}

// NewHookRecorder creates an empty recorder.
func NewHookRecorder() *HookRecorder {
	return &HookRecorder{progress: make(map[string]int64)}
}

// Open records an open request.
func (r *HookRecorder) Open(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, uri)
}

// Replaced records a re-keyed URI.
func (r *HookRecorder) Replaced(oldURI, newURI string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaced = append(r.replaced, [2]string{oldURI, newURI})
}

// Progress records the last progress report per resource.
func (r *HookRecorder) Progress(uri string, sent, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[uri] = sent
}

// Opened returns every opened URI.
func (r *HookRecorder) Opened() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.opened...)
}

// ReplacedURIs returns every (old, new) pair.
func (r *HookRecorder) ReplacedURIs() [][2]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]string(nil), r.replaced...)
}

// Sent returns the last reported progress of a resource.
func (r *HookRecorder) Sent(uri string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress[uri]
}

// UploadCall records one Copy delegation.
type UploadCall struct {
	Source string
	Target *url.URL
	Data   []byte
}

// RecordingUploader captures Copy delegations.
type RecordingUploader struct {
	mu    sync.Mutex
	calls []UploadCall
	Err   error
}

// Upload records the call. It reads the source through data.
func (u *RecordingUploader) Upload(ctx context.Context, source string, data []byte, target *url.URL) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, UploadCall{Source: source, Target: target, Data: data})
	return u.Err
}

// Calls returns the recorded calls.
func (u *RecordingUploader) Calls() []UploadCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]UploadCall(nil), u.calls...)
}
