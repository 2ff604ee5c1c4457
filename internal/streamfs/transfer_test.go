package streamfs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/TheMichaelB/streamfs/internal/blobcache"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/test/testutil"
)

func TestChunkedUploadFrames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.DraftInput("in-1", "Hello", "body"))
	in := f.input(t, "Hello")

	buf := testutil.RandomBytes(200000, 42)
	out, err := in.UploadFile(ctx, &models.File{Name: "big.png", Data: buf})
	require.NoError(t, err)

	name := models.UploadResourceName("in-1", out.Sha256, int64(len(buf)))
	frames := f.backend.Blobs.Frames()
	require.Len(t, frames, 4)

	var total int
	for i, fr := range frames {
		assert.Equal(t, name, fr.ResourceName)
		assert.Equal(t, int64(total), fr.WriteOffset)
		if i > 0 {
			assert.Greater(t, fr.WriteOffset, frames[i-1].WriteOffset)
		}
		assert.Equal(t, i == len(frames)-1, fr.FinishWrite)
		total += fr.Length
	}
	assert.Equal(t, len(buf), total)
	assert.Equal(t, 200000-3*DefaultChunkSize, frames[3].Length)

	assert.Equal(t, int64(len(buf)), f.hooks.Sent(name))
}

func TestUploadOverLimitOpensNoStream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.DraftInput("in-1", "Hello", "body"))
	in := f.input(t, "Hello")

	_, err := in.UploadFile(ctx, &models.File{Name: "huge.png", Data: make([]byte, DefaultMaxBodySize+1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNoPermissions))
	assert.Contains(t, err.Error(), "10485760")
	assert.Zero(t, f.backend.Blobs.WriteStreams())
}

func TestEmptyUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.DraftInput("in-1", "Hello", "body"))
	in := f.input(t, "Hello")

	out, err := in.UploadFile(ctx, &models.File{Name: "empty.png", Data: []byte{}})
	require.NoError(t, err)
	assert.Equal(t, testutil.EmptySHA256, out.Sha256)

	frames := f.backend.Blobs.Frames()
	require.Len(t, frames, 1)
	assert.True(t, frames[0].FinishWrite)
	assert.Zero(t, frames[0].Length)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := testutil.NewBackend(t, testutil.DraftInput("in-1", "Hello", "body"))

	sizes := map[string]int{
		"empty.png": 0,
		"one.png":   1,
		"chunk.png": DefaultChunkSize,
		"large.png": 3*DefaultChunkSize + 17,
	}
	writer := newFixtureOn(t, backend)
	want := make(map[string][]byte)
	seed := int64(100)
	for name, size := range sizes {
		seed++
		want[name] = testutil.RandomBytes(size, seed)
		require.NoError(t, writer.fs.WriteFile(ctx, "/octocat/Hello/"+name, want[name], WriteOptions{Create: true}))
	}

	// A fresh graph has no cached bytes and must download.
	reader := newFixtureOn(t, backend)
	for name, data := range want {
		got, err := reader.fs.ReadFile(ctx, "/octocat/Hello/"+name)
		require.NoError(t, err, name)
		assert.Equal(t, data, got, name)

		st, err := reader.fs.Stat(ctx, "/octocat/Hello/"+name)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), st.Size)
	}

	reads := backend.Blobs.Reads()
	assert.Len(t, reads, len(sizes))
	for _, name := range reads {
		_, sha, size, err := models.ParseResourceName(name)
		require.NoError(t, err)
		assert.Equal(t, models.BlobResourceName(sha, size), name)
	}
}

func TestDownloadUsesCache(t *testing.T) {
	ctx := context.Background()
	backend := testutil.NewBackend(t, testutil.DraftInput("in-1", "Hello", "body"))
	cache := blobcache.NewMemoryCache(1 << 20)

	writer := newFixtureOn(t, backend, withCache(cache))
	require.NoError(t, writer.fs.WriteFile(ctx, "/octocat/Hello/a.gif", testutil.GIF14, WriteOptions{Create: true}))

	reader := newFixtureOn(t, backend, withCache(cache))
	data, err := reader.fs.ReadFile(ctx, "/octocat/Hello/a.gif")
	require.NoError(t, err)
	assert.Equal(t, testutil.GIF14, data)
	assert.Empty(t, backend.Blobs.Reads())
}

func TestDownloadIntegrity(t *testing.T) {
	ctx := context.Background()
	good := []byte("the real bytes")
	sha := models.HashBytes(good)

	in := testutil.DraftInput("in-1", "Hello", "body")
	in.FileSet = []*models.File{{Name: "a.png", Sha256: sha, Size: int64(len(good))}}
	f := newFixture(t, in)

	bad := []byte("the fake bytes")
	require.Len(t, bad, len(good))
	require.NoError(t, f.backend.Harness.Objects.PutObject(ctx, models.BlobResourceName(sha, int64(len(good))), bad))

	_, err := f.fs.ReadFile(ctx, "/octocat/Hello/a.png")
	var integrity *models.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, sha, integrity.Expected)
}

func TestDownloadRequiresAddress(t *testing.T) {
	ctx := context.Background()
	in := testutil.DraftInput("in-1", "Hello", "body")
	in.FileSet = []*models.File{{Name: "a.png", Size: 3}}
	f := newFixture(t, in)

	_, err := f.fs.ReadFile(ctx, "/octocat/Hello/a.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNoPermissions))
	assert.Contains(t, err.Error(), "mandatory fields missing")
	assert.Empty(t, f.backend.Blobs.Reads())
}

func TestDownloadFailures(t *testing.T) {
	ctx := context.Background()
	data := []byte("payload")
	in := testutil.DraftInput("in-1", "Hello", "body")
	in.FileSet = []*models.File{{Name: "a.png", Sha256: models.HashBytes(data), Size: int64(len(data))}}

	t.Run("missing blob", func(t *testing.T) {
		f := newFixture(t, in)
		_, err := f.fs.ReadFile(ctx, "/octocat/Hello/a.png")
		var terr *models.TransferError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, codes.NotFound, terr.Code)
		assert.Equal(t, "download", terr.Op)
	})

	t.Run("transport failure", func(t *testing.T) {
		f := newFixture(t, in)
		f.backend.Blobs.FailReads(status.Error(codes.Unavailable, "link down"))
		_, err := f.fs.ReadFile(ctx, "/octocat/Hello/a.png")
		var terr *models.TransferError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, codes.Unavailable, terr.Code)
		assert.Equal(t, "link down", terr.Detail)
		assert.False(t, errors.Is(err, models.ErrCancelled))
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newFixture(t, in)
		f.backend.Harness.PutBlob(t, data)
		_, err := f.fs.Lookup(ctx, "/octocat/Hello/a.png", false)
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = f.fs.ReadFile(cctx, "/octocat/Hello/a.png")
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrCancelled))
	})

	t.Run("huge remote size", func(t *testing.T) {
		huge := testutil.DraftInput("in-1", "Hello", "body")
		huge.FileSet = []*models.File{{Name: "a.png", Sha256: testutil.EmptySHA256, Size: 1 << 62}}
		f := newFixture(t, huge)

		var err error
		assert.NotPanics(t, func() {
			_, err = f.fs.ReadFile(ctx, "/octocat/Hello/a.png")
		})
		var terr *models.TransferError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, codes.NotFound, terr.Code)
	})

	t.Run("more bytes than size", func(t *testing.T) {
		short := testutil.DraftInput("in-1", "Hello", "body")
		short.FileSet = []*models.File{{Name: "a.png", Sha256: models.HashBytes(data), Size: 3}}
		f := newFixture(t, short)
		require.NoError(t, f.backend.Harness.Objects.PutObject(ctx, models.BlobResourceName(models.HashBytes(data), 3), data))

		_, err := f.fs.ReadFile(ctx, "/octocat/Hello/a.png")
		var terr *models.TransferError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, codes.OutOfRange, terr.Code)
	})
}

func TestUploadCancelled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.DraftInput("in-1", "Hello", "body"))
	in := f.input(t, "Hello")

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := in.UploadFile(cctx, &models.File{Name: "a.png", Data: testutil.RandomBytes(100, 1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrCancelled))
	var terr *models.TransferError
	assert.False(t, errors.As(err, &terr))
}

func TestUploadSniffsImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.DraftInput("in-1", "Hello", "body"))
	in := f.input(t, "Hello")

	// The table type says png; the bytes are a GIF.
	out, err := in.UploadFile(ctx, &models.File{Name: "pixel.png", Data: testutil.GIF14})
	require.NoError(t, err)
	assert.Equal(t, "image/gif", out.ContentType)
	require.NotNil(t, out.ImageInfo)
	assert.Equal(t, int32(1), out.ImageInfo.Width)
}
