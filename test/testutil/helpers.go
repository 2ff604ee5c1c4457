package testutil

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/bytestream"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/TheMichaelB/streamfs/internal/inputstore"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/server"
	"github.com/TheMichaelB/streamfs/internal/storage"
	"github.com/TheMichaelB/streamfs/internal/transport"
)

// BlobHarness runs an in-process ByteStream server over bufconn.
type BlobHarness struct {
	Objects *storage.MemoryObjectStore
	Server  *server.ByteStreamServer
	Client  bytestream.ByteStreamClient
	Conn    *grpc.ClientConn
}

// NewBlobHarness starts the server and dials it. Both are torn down with t.
func NewBlobHarness(t testing.TB) *BlobHarness {
	t.Helper()

	objects := storage.NewMemoryObjectStore()
	bs := server.NewByteStreamServer(objects, NewTestLogger())

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	bytestream.RegisterByteStreamServer(srv, bs)
	go func() {
		_ = srv.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
		lis.Close()
	})

	return &BlobHarness{
		Objects: objects,
		Server:  bs,
		Client:  bytestream.NewByteStreamClient(conn),
		Conn:    conn,
	}
}

// PutBlob stores data under its download address and returns the
// descriptor fields (sha256, size).
func (h *BlobHarness) PutBlob(t testing.TB, data []byte) (string, int64) {
	t.Helper()
	sha := models.HashBytes(data)
	size := int64(len(data))
	require.NoError(t, h.Objects.PutObject(context.Background(), models.BlobResourceName(sha, size), data))
	return sha, size
}

// Backend bundles the collaborators of a filesystem under test.
type Backend struct {
	Store   *inputstore.MemoryStore
	Inputs  *transport.MockInputs
	Blobs   *transport.RecordingBlobs
	Harness *BlobHarness
}

// NewBackend seeds an in-memory Input store with inputs and starts a blob
// harness. Inputs calls are recorded by a MockInputs; write frames by a
// RecordingBlobs.
func NewBackend(t testing.TB, inputs ...*models.Input) *Backend {
	t.Helper()

	store := inputstore.NewMemoryStore()
	store.Now = FixedClock(Epoch)
	store.Seed(inputs...)

	mock := transport.NewMockInputs()
	mock.Backend = store

	h := NewBlobHarness(t)
	return &Backend{
		Store:   store,
		Inputs:  mock,
		Blobs:   transport.NewRecordingBlobs(h.Client),
		Harness: h,
	}
}

// Remote reads an Input straight from the store.
func (b *Backend) Remote(t testing.TB, id string) *models.Input {
	t.Helper()
	in, err := b.Store.GetInput(context.Background(), models.InputFilter{Login: Login, ID: id}, nil)
	require.NoError(t, err)
	return in
}
