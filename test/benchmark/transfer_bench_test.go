package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/TheMichaelB/streamfs/internal/blobcache"
	"github.com/TheMichaelB/streamfs/internal/streamfs"
	"github.com/TheMichaelB/streamfs/test/testutil"
)

var sizes = []int{
	10240,    // 10KB
	102400,   // 100KB
	1048576,  // 1MB
	10485760, // 10MB
}

func newFS(backend *testutil.Backend, cache blobcache.Cache) *streamfs.FS {
	fs := streamfs.New(streamfs.Options{
		Inputs: backend.Inputs,
		Blobs:  backend.Blobs,
		Cache:  cache,
		Logger: testutil.NewTestLogger(),
	})
	fs.AddUser(testutil.Login)
	return fs
}

// gifOfSize returns a valid GIF header padded to size bytes.
func gifOfSize(size int) []byte {
	data := append([]byte(nil), testutil.GIF14...)
	return append(data, testutil.RandomBytes(size-len(data), int64(size))...)
}

func BenchmarkAttachmentUpload(b *testing.B) {
	ctx := context.Background()

	for _, size := range sizes {
		b.Run(fmt.Sprintf("%dKB", size/1024), func(b *testing.B) {
			backend := testutil.NewBackend(b, testutil.DraftInput("in-1", "Bench", ""))
			fs := newFS(backend, nil)
			defer fs.Close()
			data := gifOfSize(size)

			b.ResetTimer()
			b.ReportAllocs()
			b.SetBytes(int64(size))

			for i := 0; i < b.N; i++ {
				uri := fmt.Sprintf("/%s/Bench/file_%d.gif", testutil.Login, i)
				if err := fs.WriteFile(ctx, uri, data, streamfs.WriteOptions{Create: true}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkAttachmentDownload(b *testing.B) {
	ctx := context.Background()

	for _, size := range sizes {
		b.Run(fmt.Sprintf("%dKB", size/1024), func(b *testing.B) {
			backend := testutil.NewBackend(b, testutil.DraftInput("in-1", "Bench", ""))
			uri := fmt.Sprintf("/%s/Bench/read.gif", testutil.Login)

			seed := newFS(backend, nil)
			if err := seed.WriteFile(ctx, uri, gifOfSize(size), streamfs.WriteOptions{Create: true}); err != nil {
				b.Fatal(err)
			}
			seed.Close()

			b.ResetTimer()
			b.ReportAllocs()
			b.SetBytes(int64(size))

			for i := 0; i < b.N; i++ {
				// A fresh filesystem holds no attachment bytes.
				fs := newFS(backend, nil)
				if _, err := fs.ReadFile(ctx, uri); err != nil {
					b.Fatal(err)
				}
				fs.Close()
			}
		})
	}
}

func BenchmarkCachedDownload(b *testing.B) {
	ctx := context.Background()
	size := 1048576

	backend := testutil.NewBackend(b, testutil.DraftInput("in-1", "Bench", ""))
	uri := fmt.Sprintf("/%s/Bench/read.gif", testutil.Login)
	cache := blobcache.NewMemoryCache(64 * 1024 * 1024)

	seed := newFS(backend, cache)
	if err := seed.WriteFile(ctx, uri, gifOfSize(size), streamfs.WriteOptions{Create: true}); err != nil {
		b.Fatal(err)
	}
	seed.Close()

	b.ResetTimer()
	b.ReportAllocs()
	b.SetBytes(int64(size))

	for i := 0; i < b.N; i++ {
		fs := newFS(backend, cache)
		if _, err := fs.ReadFile(ctx, uri); err != nil {
			b.Fatal(err)
		}
		fs.Close()
	}
}
