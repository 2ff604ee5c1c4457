package streamfs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/transport"
)

// ContentFileName is the file name of an Input's markdown body. It encodes
// the status so that publishing changes the file's identity.
func ContentFileName(slug string, st models.Status) string {
	switch st {
	case models.StatusDraft:
		return slug + ".draft.md"
	case models.StatusPublished:
		return slug + ".published.md"
	default:
		return slug + ".md"
	}
}

// ContentFileNode is the markdown body of one Input.
type ContentFileNode struct {
	baseNode
	input *InputNode
	env   *env

	mu     sync.Mutex
	data   []byte
	loaded bool
}

func newContentFileNode(input *InputNode, name string, ctime, mtime time.Time) *ContentFileNode {
	return &ContentFileNode{
		baseNode: newBaseNode(KindContentFile, JoinURI(input.URI(), name), ctime, mtime),
		input:    input,
		env:      input.env,
	}
}

// Size implements Node.
func (f *ContentFileNode) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data))
}

// Input returns the owning Input node.
func (f *ContentFileNode) Input() *InputNode {
	return f.input
}

// Data fetches the markdown body on first use.
func (f *ContentFileNode) Data(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	if f.loaded {
		data := append([]byte(nil), f.data...)
		f.mu.Unlock()
		return data, nil
	}
	f.mu.Unlock()

	inputs, err := f.env.inputsClient()
	if err != nil {
		return nil, err
	}

	id, login := f.input.ID(), f.input.Login()
	in, err := inputs.GetInput(ctx, models.InputFilter{Login: login, ID: id}, transport.Mask(models.PathContent))
	if err != nil {
		return nil, models.Unavailable(err, "load content of %s", f.uri)
	}

	var markdown string
	if in.Content != nil {
		markdown = in.Content.Markdown
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = []byte(markdown)
	f.loaded = true
	return append([]byte(nil), f.data...), nil
}

// SetData pushes a new markdown body. Published Inputs are read-only: the
// host is offered a conversion to draft and the write fails either way.
func (f *ContentFileNode) SetData(ctx context.Context, data []byte) error {
	if f.input.Status() == models.StatusPublished {
		convert, err := f.env.offerConvertToDraft(ctx, f.uri)
		if err != nil {
			f.env.logger.WithError(err).Warn("Convert to draft prompt failed")
		}
		if convert {
			if err := f.input.UpdateStatus(ctx, models.StatusDraft); err != nil {
				return err
			}
			return models.NoPermissions("read-only file %s: converted to draft, write the draft instead", f.uri)
		}
		return models.NoPermissions("read-only file %s: published inputs cannot be edited", f.uri)
	}

	inputs, err := f.env.inputsClient()
	if err != nil {
		return err
	}

	markdown := strings.ToValidUTF8(string(data), "\uFFFD")
	patch := &models.Input{
		ID:      f.input.ID(),
		Login:   f.input.Login(),
		Content: &models.Content{Markdown: markdown},
	}
	updated, err := inputs.UpdateInput(ctx, patch, transport.Mask(models.PathContent))
	if err != nil {
		return models.Unavailable(err, "update content of %s", f.uri)
	}

	f.setTimes(time.Time{}, updated.UpdatedAt)
	f.mu.Lock()
	f.data = []byte(markdown)
	f.loaded = true
	f.mu.Unlock()

	if updated.Title != "" && updated.Title != f.input.Title() {
		time.AfterFunc(titleRepairDelay, func() {
			f.input.retitled(updated)
		})
	}
	return nil
}

// carry copies cached content into a replacement node.
func (f *ContentFileNode) carry(to *ContentFileNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	to.mu.Lock()
	defer to.mu.Unlock()
	to.data = append([]byte(nil), f.data...)
	to.loaded = f.loaded
}

var _ File = (*ContentFileNode)(nil)
