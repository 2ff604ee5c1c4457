package fusefs

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/streamfs"
	"github.com/TheMichaelB/streamfs/test/testutil"
)

func TestErrno(t *testing.T) {
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{models.FileNotFound("/a"), syscall.ENOENT},
		{models.FileExists("/a"), syscall.EEXIST},
		{models.FileNotADirectory("/a"), syscall.ENOTDIR},
		{models.FileIsADirectory("/a"), syscall.EISDIR},
		{models.NoPermissions("nope"), syscall.EACCES},
		{models.Unavailable(errors.New("down"), "list"), syscall.EIO},
		{fmt.Errorf("upload: %w", models.ErrCancelled), syscall.EINTR},
		{context.Canceled, syscall.EINTR},
		{&models.IntegrityError{Path: "/blobs/x/1"}, syscall.EIO},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Errno(tt.err), fmt.Sprint(tt.err))
	}
}

func newRoot(t *testing.T, inputs ...*models.Input) (*Node, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend(t, inputs...)
	fs := streamfs.New(streamfs.Options{
		Inputs: backend.Inputs,
		Blobs:  backend.Blobs,
		Logger: testutil.NewTestLogger(),
		Now:    testutil.FixedClock(testutil.Epoch),
	})
	t.Cleanup(func() { fs.Close() })
	fs.AddUser(testutil.Login)
	return NewRoot(fs, testutil.NewTestLogger()), backend
}

func readAll(t *testing.T, ds interface {
	HasNext() bool
	Next() (fuse.DirEntry, syscall.Errno)
}) []string {
	t.Helper()
	var names []string
	for ds.HasNext() {
		e, errno := ds.Next()
		require.Zero(t, errno)
		names = append(names, e.Name)
	}
	return names
}

func TestReaddirAndGetattr(t *testing.T) {
	ctx := context.Background()
	root, _ := newRoot(t, testutil.DraftInput("in-1", "Hello", "# hi"))

	ds, errno := root.Readdir(ctx)
	require.Zero(t, errno)
	assert.Contains(t, readAll(t, ds), testutil.Login)

	dir := root.child(testutil.Login).child("Hello")
	ds, errno = dir.Readdir(ctx)
	require.Zero(t, errno)
	assert.Equal(t, []string{"hello.draft.md"}, readAll(t, ds))

	var out fuse.AttrOut
	require.Zero(t, dir.Getattr(ctx, nil, &out))
	assert.Equal(t, uint32(syscall.S_IFDIR|0o755), out.Mode)

	file := dir.child("hello.draft.md")
	require.Zero(t, file.Getattr(ctx, nil, &out))
	assert.Equal(t, uint32(syscall.S_IFREG|0o644), out.Mode)
	assert.Zero(t, out.Size, "size is unknown until loaded")
	assert.Equal(t, uint64(testutil.Epoch.Unix()), out.Mtime)

	_, _, errno = file.Open(ctx, syscall.O_RDONLY)
	require.Zero(t, errno)
	require.Zero(t, file.Getattr(ctx, nil, &out))
	assert.Equal(t, uint64(4), out.Size)

	assert.Equal(t, syscall.ENOENT, root.child("nobody").child("x").Getattr(ctx, nil, &out))
}

func TestOpenRead(t *testing.T) {
	ctx := context.Background()
	root, _ := newRoot(t, testutil.DraftInput("in-1", "Hello", "# hello"))
	file := root.child(testutil.Login).child("Hello").child("hello.draft.md")

	fh, _, errno := file.Open(ctx, syscall.O_RDONLY)
	require.Zero(t, errno)
	r := fh.(*readHandle)

	res, errno := r.Read(ctx, make([]byte, 3), 2)
	require.Zero(t, errno)
	data, _ := res.Bytes(nil)
	assert.Equal(t, "hel", string(data))

	res, errno = r.Read(ctx, make([]byte, 8), 100)
	require.Zero(t, errno)
	assert.Zero(t, res.Size())

	_, _, errno = root.child(testutil.Login).child("Hello").Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.EISDIR, errno)
}

func TestWriteFlush(t *testing.T) {
	ctx := context.Background()
	root, backend := newRoot(t, testutil.DraftInput("in-1", "Hello", "# hello"))
	file := root.child(testutil.Login).child("Hello").child("hello.draft.md")

	fh, _, errno := file.Open(ctx, syscall.O_WRONLY)
	require.Zero(t, errno)
	h := fh.(*writeHandle)
	assert.Equal(t, int64(7), h.size())

	n, errno := h.Write(ctx, []byte("# bye"), 0)
	require.Zero(t, errno)
	assert.Equal(t, uint32(5), n)

	var out fuse.AttrOut
	require.Zero(t, file.Setattr(ctx, h, &fuse.SetAttrIn{SetAttrInCommon: fuse.SetAttrInCommon{
		Valid: fuse.FATTR_SIZE,
		Size:  5,
	}}, &out))
	assert.Equal(t, uint64(5), out.Size)

	require.Zero(t, h.Flush(ctx))
	assert.Equal(t, "# bye", backend.Remote(t, "in-1").Content.Markdown)

	// Clean handles do not write again.
	calls := len(backend.Inputs.CallsTo("UpdateInput"))
	require.Zero(t, h.Flush(ctx))
	assert.Len(t, backend.Inputs.CallsTo("UpdateInput"), calls)
	require.Zero(t, h.Release(ctx))
}

func TestWriteFlushErrors(t *testing.T) {
	ctx := context.Background()
	root, _ := newRoot(t, testutil.PublishedInput("in-1", "Hello", "# hello"))
	file := root.child(testutil.Login).child("Hello").child("hello.published.md")

	fh, _, errno := file.Open(ctx, syscall.O_WRONLY|syscall.O_TRUNC)
	require.Zero(t, errno)
	h := fh.(*writeHandle)
	_, errno = h.Write(ctx, []byte("x"), 0)
	require.Zero(t, errno)
	assert.Equal(t, syscall.EACCES, h.Flush(ctx))

	var out fuse.AttrOut
	assert.Equal(t, syscall.EACCES, file.Setattr(ctx, nil, &fuse.SetAttrIn{SetAttrInCommon: fuse.SetAttrInCommon{
		Valid: fuse.FATTR_SIZE,
	}}, &out))
}

func TestNamespaceOperations(t *testing.T) {
	ctx := context.Background()
	root, backend := newRoot(t, testutil.DraftInput("in-1", "Hello", "# hello"))
	user := root.child(testutil.Login)
	input := user.child("Hello")

	h := &writeHandle{node: input.child("dot.gif"), create: true, dirty: true}
	_, errno := h.Write(ctx, testutil.GIF14, 0)
	require.Zero(t, errno)
	require.Zero(t, h.Flush(ctx))
	require.Len(t, backend.Remote(t, "in-1").FileSet, 1)

	require.Zero(t, input.Rename(ctx, "dot.gif", input, "pixel.gif", 0))
	assert.Equal(t, "pixel.gif", backend.Remote(t, "in-1").FileSet[0].Name)
	assert.Equal(t, syscall.EACCES, input.Rename(ctx, "pixel.gif", user, "pixel.gif", 0))

	require.Zero(t, input.Unlink(ctx, "pixel.gif"))
	assert.Empty(t, backend.Remote(t, "in-1").FileSet)
	assert.Equal(t, syscall.ENOENT, input.Unlink(ctx, "pixel.gif"))
}
