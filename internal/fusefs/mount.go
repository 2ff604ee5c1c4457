// Package fusefs mounts a streamfs filesystem on the local machine.
package fusefs

import (
	"context"
	"fmt"
	"os"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/TheMichaelB/streamfs/internal/config"
	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/streamfs"
)

// Mount mounts fs at cfg.Mountpoint and unmounts it when ctx is done.
// The mountpoint is created if missing. Callers wait on the returned
// server.
func Mount(ctx context.Context, fs *streamfs.FS, cfg config.MountConfig, logger *events.Logger) (*fuse.Server, error) {
	if cfg.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	logger = logger.WithField("component", "fusefs")

	if err := os.MkdirAll(cfg.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("create mountpoint %s: %w", cfg.Mountpoint, err)
	}

	// Remote state changes without the kernel noticing, keep caches short.
	entryTimeout := time.Second
	attrTimeout := time.Second
	negativeTimeout := 100 * time.Millisecond

	root := NewRoot(fs, logger)
	server, err := gofuse.Mount(cfg.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "streamfs",
			Name:       "streamfs",
			AllowOther: cfg.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", cfg.Mountpoint, err)
	}

	go func() {
		<-ctx.Done()
		if err := server.Unmount(); err != nil {
			logger.WithError(err).Warn("Unmount failed")
		}
	}()

	logger.WithField("mountpoint", cfg.Mountpoint).Info("Filesystem mounted")
	return server, nil
}
