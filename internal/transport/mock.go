package transport

import (
	"context"
	"sync"

	"google.golang.org/genproto/googleapis/bytestream"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/TheMichaelB/streamfs/internal/inputstore"
	"github.com/TheMichaelB/streamfs/internal/models"
)

// Inputs method names used for request tracking and error injection.
const (
	MethodCreateInput = "CreateInput"
	MethodGetInput    = "GetInput"
	MethodUpdateInput = "UpdateInput"
	MethodRemoveInput = "RemoveInput"
	MethodListInputs  = "ListInputs"
)

// InputsCall records one call made through MockInputs.
type InputsCall struct {
	Method string
	Filter models.InputFilter
	Input  *models.Input
	ID     string
	Mask   []string
}

// MockInputs is an InputsClient for tests. Calls are recorded and served by
// Backend, an in-memory store unless replaced.
type MockInputs struct {
	mu sync.Mutex

	Backend InputsClient

	// Request tracking
	Calls []InputsCall

	// Error injection
	errors   map[string]error
	failNext map[string]error
}

// NewMockInputs creates a mock backed by a fresh in-memory store.
func NewMockInputs() *MockInputs {
	return &MockInputs{
		Backend:  inputstore.NewMemoryStore(),
		errors:   make(map[string]error),
		failNext: make(map[string]error),
	}
}

var _ InputsClient = (*MockInputs)(nil)

// SetError makes every call to method fail with err until cleared with nil.
func (m *MockInputs) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errors, method)
		return
	}
	m.errors[method] = err
}

// FailNext makes only the next call to method fail with err.
func (m *MockInputs) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[method] = err
}

// CallCount returns how many times method was called.
func (m *MockInputs) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// CallsTo returns the recorded calls to method.
func (m *MockInputs) CallsTo(method string) []InputsCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []InputsCall
	for _, c := range m.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded calls and injected errors.
func (m *MockInputs) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.errors = make(map[string]error)
	m.failNext = make(map[string]error)
}

func (m *MockInputs) track(call InputsCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, call)

	if err, ok := m.failNext[call.Method]; ok {
		delete(m.failNext, call.Method)
		return err
	}
	return m.errors[call.Method]
}

// CreateInput implements InputsClient.
func (m *MockInputs) CreateInput(ctx context.Context, input *models.Input) (*models.Input, error) {
	if err := m.track(InputsCall{Method: MethodCreateInput, Input: input.Clone()}); err != nil {
		return nil, err
	}
	return m.Backend.CreateInput(ctx, input)
}

// GetInput implements InputsClient.
func (m *MockInputs) GetInput(ctx context.Context, filter models.InputFilter, mask *fieldmaskpb.FieldMask) (*models.Input, error) {
	if err := m.track(InputsCall{Method: MethodGetInput, Filter: filter, Mask: mask.GetPaths()}); err != nil {
		return nil, err
	}
	return m.Backend.GetInput(ctx, filter, mask)
}

// UpdateInput implements InputsClient.
func (m *MockInputs) UpdateInput(ctx context.Context, input *models.Input, mask *fieldmaskpb.FieldMask) (*models.Input, error) {
	if err := m.track(InputsCall{Method: MethodUpdateInput, Input: input.Clone(), Mask: mask.GetPaths()}); err != nil {
		return nil, err
	}
	return m.Backend.UpdateInput(ctx, input, mask)
}

// RemoveInput implements InputsClient.
func (m *MockInputs) RemoveInput(ctx context.Context, id string) error {
	if err := m.track(InputsCall{Method: MethodRemoveInput, ID: id}); err != nil {
		return err
	}
	return m.Backend.RemoveInput(ctx, id)
}

// ListInputs implements InputsClient.
func (m *MockInputs) ListInputs(ctx context.Context, filter models.InputFilter) ([]*models.Input, error) {
	if err := m.track(InputsCall{Method: MethodListInputs, Filter: filter}); err != nil {
		return nil, err
	}
	return m.Backend.ListInputs(ctx, filter)
}

// WriteFrame records one WriteRequest without its payload.
type WriteFrame struct {
	ResourceName string
	WriteOffset  int64
	Length       int
	FinishWrite  bool
}

// RecordingBlobs wraps a BlobClient and records every stream it opens and
// every write frame it sends.
type RecordingBlobs struct {
	BlobClient

	mu      sync.Mutex
	reads   []string
	writes  int
	frames  []WriteFrame
	readErr error
}

// NewRecordingBlobs wraps next.
func NewRecordingBlobs(next BlobClient) *RecordingBlobs {
	return &RecordingBlobs{BlobClient: next}
}

// FailReads makes Read return err without contacting the wrapped client.
func (r *RecordingBlobs) FailReads(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readErr = err
}

// Read records the requested resource name.
func (r *RecordingBlobs) Read(ctx context.Context, in *bytestream.ReadRequest, opts ...grpc.CallOption) (bytestream.ByteStream_ReadClient, error) {
	r.mu.Lock()
	r.reads = append(r.reads, in.GetResourceName())
	err := r.readErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.BlobClient.Read(ctx, in, opts...)
}

// Write records that a stream was opened and wraps it to capture frames.
func (r *RecordingBlobs) Write(ctx context.Context, opts ...grpc.CallOption) (bytestream.ByteStream_WriteClient, error) {
	r.mu.Lock()
	r.writes++
	r.mu.Unlock()

	stream, err := r.BlobClient.Write(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &recordingWriteStream{ByteStream_WriteClient: stream, owner: r}, nil
}

// Reads returns the resource names of every Read call.
func (r *RecordingBlobs) Reads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reads...)
}

// WriteStreams returns how many Write streams were opened.
func (r *RecordingBlobs) WriteStreams() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// Frames returns every recorded write frame.
func (r *RecordingBlobs) Frames() []WriteFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]WriteFrame(nil), r.frames...)
}

type recordingWriteStream struct {
	bytestream.ByteStream_WriteClient
	owner *RecordingBlobs
}

func (s *recordingWriteStream) Send(req *bytestream.WriteRequest) error {
	s.owner.mu.Lock()
	s.owner.frames = append(s.owner.frames, WriteFrame{
		ResourceName: req.GetResourceName(),
		WriteOffset:  req.GetWriteOffset(),
		Length:       len(req.GetData()),
		FinishWrite:  req.GetFinishWrite(),
	})
	s.owner.mu.Unlock()
	return s.ByteStream_WriteClient.Send(req)
}
