package benchmark

import (
	"context"
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/storage"
	"github.com/TheMichaelB/streamfs/test/testutil"
)

func BenchmarkLocalObjectStoreWrite(b *testing.B) {
	ctx := context.Background()
	store, err := storage.NewLocalObjectStore(b.TempDir(), testutil.NewTestLogger())
	if err != nil {
		b.Fatal(err)
	}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("%dKB", size/1024), func(b *testing.B) {
			data := make([]byte, size)
			rand.Read(data)

			b.ResetTimer()
			b.ReportAllocs()
			b.SetBytes(int64(size))

			for i := 0; i < b.N; i++ {
				key := models.BlobResourceName(fmt.Sprintf("%064x", i), int64(size))
				if err := store.PutObject(ctx, key, data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkLocalObjectStoreRead(b *testing.B) {
	ctx := context.Background()
	store, err := storage.NewLocalObjectStore(b.TempDir(), testutil.NewTestLogger())
	if err != nil {
		b.Fatal(err)
	}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("%dKB", size/1024), func(b *testing.B) {
			data := make([]byte, size)
			rand.Read(data)

			key := models.BlobResourceName(models.HashBytes(data), int64(size))
			if err := store.PutObject(ctx, key, data); err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()
			b.ReportAllocs()
			b.SetBytes(int64(size))

			for i := 0; i < b.N; i++ {
				if _, err := store.GetObject(ctx, key); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
