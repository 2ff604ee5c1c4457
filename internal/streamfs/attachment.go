package streamfs

import (
	"context"
	"sync"
	"time"

	"github.com/TheMichaelB/streamfs/internal/models"
)

// AttachmentNode is one binary file of an Input, addressed by
// (sha256, size).
type AttachmentNode struct {
	baseNode
	input *InputNode
	env   *env

	mu     sync.Mutex
	file   *models.File
	data   []byte
	loaded bool
}

func newAttachmentNode(input *InputNode, file *models.File) *AttachmentNode {
	meta := file.Metadata()
	n := &AttachmentNode{
		baseNode: newBaseNode(KindAttachment, JoinURI(input.URI(), meta.Name), meta.CreatedAt, meta.ModifiedAt),
		input:    input,
		env:      input.env,
		file:     meta,
	}
	if file.Data != nil {
		n.data = append([]byte(nil), file.Data...)
		n.loaded = true
	}
	return n
}

// Size implements Node. It is 0 until the data has been loaded or set.
func (a *AttachmentNode) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int64(len(a.data))
}

// File returns the descriptor without data.
func (a *AttachmentNode) File() *models.File {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Metadata()
}

// Loaded reports whether the bytes are cached.
func (a *AttachmentNode) Loaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loaded
}

// Data downloads the blob on first use.
func (a *AttachmentNode) Data(ctx context.Context) ([]byte, error) {
	a.mu.Lock()
	if a.loaded {
		data := append([]byte(nil), a.data...)
		a.mu.Unlock()
		return data, nil
	}
	sha, size := a.file.Sha256, a.file.Size
	a.mu.Unlock()

	if sha == "" || size < 0 {
		return nil, models.NoPermissions("%s: mandatory fields missing (sha256, size)", a.uri)
	}

	data, err := a.env.download(ctx, sha, size)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.data = data
	a.loaded = true
	return append([]byte(nil), data...), nil
}

// SetData uploads new content, re-addresses the descriptor and pushes the
// file set. A failed push restores the previous descriptor and bytes.
func (a *AttachmentNode) SetData(ctx context.Context, data []byte) error {
	a.mu.Lock()
	prevFile, prevData, prevLoaded := a.file, a.data, a.loaded
	next := a.file.Metadata()
	a.mu.Unlock()

	if data == nil {
		data = []byte{}
	}
	next.Data = data
	uploaded, err := a.input.UploadFile(ctx, next)
	if err != nil {
		return err
	}

	now := a.env.now()
	a.mu.Lock()
	a.file = uploaded.Metadata()
	a.data = append([]byte(nil), data...)
	a.loaded = true
	a.mu.Unlock()
	a.setTimes(time.Time{}, now)

	if err := a.input.updateFileSet(ctx); err != nil {
		a.mu.Lock()
		a.file, a.data, a.loaded = prevFile, prevData, prevLoaded
		a.mu.Unlock()
		a.setTimes(time.Time{}, prevFile.ModifiedAt)
		return err
	}
	return nil
}

// renamed returns a copy of the node under a new name, carrying cached data.
func (a *AttachmentNode) renamed(name string) *AttachmentNode {
	a.mu.Lock()
	f := a.file.Clone()
	if a.loaded {
		f.Data = append([]byte(nil), a.data...)
	}
	a.mu.Unlock()

	f.Name = name
	return newAttachmentNode(a.input, f)
}

var _ File = (*AttachmentNode)(nil)
