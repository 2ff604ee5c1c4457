package fusefs

import (
	"context"
	"sync"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/TheMichaelB/streamfs/internal/streamfs"
)

// readHandle serves reads from the content fetched at open.
type readHandle struct {
	data []byte
}

var _ gofuse.FileReader = (*readHandle)(nil)

func (h *readHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off >= int64(len(h.data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(h.data)) {
		end = int64(len(h.data))
	}
	return fuse.ReadResultData(h.data[off:end]), 0
}

// writeHandle buffers a whole file and writes it through streamfs on
// flush. Every flush of a dirty buffer is one remote write.
type writeHandle struct {
	mu     sync.Mutex
	node   *Node
	buffer []byte
	create bool
	dirty  bool
}

var _ gofuse.FileReader = (*writeHandle)(nil)
var _ gofuse.FileWriter = (*writeHandle)(nil)
var _ gofuse.FileFlusher = (*writeHandle)(nil)
var _ gofuse.FileReleaser = (*writeHandle)(nil)

func (h *writeHandle) size() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int64(len(h.buffer))
}

func (h *writeHandle) truncate(size int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if size < int64(len(h.buffer)) {
		h.buffer = h.buffer[:size]
	} else {
		h.buffer = append(h.buffer, make([]byte, size-int64(len(h.buffer)))...)
	}
	h.dirty = true
}

func (h *writeHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if off >= int64(len(h.buffer)) {
		return fuse.ReadResultData(nil), 0
	}
	// Copy out, the buffer may change once the lock is released.
	n := copy(dest, h.buffer[off:])
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *writeHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	end := off + int64(len(data))
	if end > int64(len(h.buffer)) {
		grown := make([]byte, end)
		copy(grown, h.buffer)
		h.buffer = grown
	}
	copy(h.buffer[off:], data)
	h.dirty = true
	return uint32(len(data)), 0
}

func (h *writeHandle) Flush(ctx context.Context) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty {
		return 0
	}
	opts := streamfs.WriteOptions{Create: h.create, Overwrite: true}
	if err := h.node.fs.WriteFile(ctx, h.node.uri, h.buffer, opts); err != nil {
		return h.node.errno("flush", err)
	}
	h.dirty = false
	h.create = false
	return 0
}

func (h *writeHandle) Release(ctx context.Context) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buffer = nil
	return 0
}
