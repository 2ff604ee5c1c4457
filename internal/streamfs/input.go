package streamfs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/transport"
)

// InputNode is the directory of one Input: exactly one ContentFileNode plus
// one AttachmentNode per entry of the file set.
type InputNode struct {
	dirNode
	user   *UserNode
	env    *env
	logger *events.Logger

	mu    sync.Mutex
	input *models.Input
}

// newInputNode wraps in under the directory entry name, which is the title
// unless the title cannot be a path segment or clashes with a sibling.
func newInputNode(user *UserNode, in *models.Input, name string) *InputNode {
	in = in.Clone()
	n := &InputNode{
		dirNode: newDirNode(KindInput, JoinURI(user.URI(), name), in.CreatedAt, in.UpdatedAt),
		user:    user,
		env:     user.env,
		input:   in,
	}
	n.logger = n.env.logger.WithFields(map[string]interface{}{
		"input_id": in.ID,
		"login":    in.Login,
	})

	n.addChild(newContentFileNode(n, ContentFileName(in.Slug(), in.Status), in.CreatedAt, in.UpdatedAt))
	for _, f := range in.FileSet {
		n.addChild(newAttachmentNode(n, f))
	}
	return n
}

// Input returns a snapshot of the wrapped Input.
func (n *InputNode) Input() *models.Input {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.input.Clone()
}

// ID returns the stable Input identifier.
func (n *InputNode) ID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.input.ID
}

// Login returns the owner.
func (n *InputNode) Login() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.input.Login
}

// Title returns the current title.
func (n *InputNode) Title() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.input.Title
}

// Status returns the current status.
func (n *InputNode) Status() models.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.input.Status
}

// FileSet returns the last pushed (or loaded) file set.
func (n *InputNode) FileSet() []*models.File {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*models.File, len(n.input.FileSet))
	for i, f := range n.input.FileSet {
		out[i] = f.Metadata()
	}
	return out
}

// ContentFile returns the markdown body node.
func (n *InputNode) ContentFile() *ContentFileNode {
	for _, c := range n.cachedChildren() {
		if cf, ok := c.(*ContentFileNode); ok {
			return cf
		}
	}
	return nil
}

// Attachments returns the attachment children in insertion order.
func (n *InputNode) Attachments() []*AttachmentNode {
	var out []*AttachmentNode
	for _, c := range n.cachedChildren() {
		if a, ok := c.(*AttachmentNode); ok {
			out = append(out, a)
		}
	}
	return out
}

// CreateFile uploads data as a new attachment. Only image types are
// accepted.
func (n *InputNode) CreateFile(ctx context.Context, name string, data []byte) (File, error) {
	if strings.Contains(name, "/") || name == "" {
		return nil, models.NoPermissions("invalid attachment name %q", name)
	}
	f := &models.File{Name: name, Data: data}
	contentType, ok := models.ContentTypeForName(name)
	if !ok {
		return nil, models.NoPermissions("%s: unsupported attachment type %q", n.Title(), f.Ext())
	}
	f.ContentType = contentType
	if f.Data == nil {
		f.Data = []byte{}
	}

	nodes, err := n.UploadFiles(ctx, []*models.File{f})
	if err != nil {
		return nil, err
	}
	return nodes[0], nil
}

// UploadFiles uploads files concurrently, adds a child per successful
// upload, and pushes the file set once. If that push fails the added
// children are removed again. Per-file failures are joined into the error.
func (n *InputNode) UploadFiles(ctx context.Context, files []*models.File) ([]*AttachmentNode, error) {
	uploaded := make([]*models.File, len(files))
	failures := make([]error, len(files))

	limit := n.env.maxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, f := range files {
		g.Go(func() error {
			out, err := n.UploadFile(ctx, f)
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", f.Name, err)
				return nil
			}
			uploaded[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var added []*AttachmentNode
	for _, f := range uploaded {
		if f == nil {
			continue
		}
		node := newAttachmentNode(n, f)
		n.addChild(node)
		added = append(added, node)
	}

	if len(added) > 0 {
		if err := n.updateFileSet(ctx); err != nil {
			for _, node := range added {
				n.removeChild(node.Name())
			}
			return nil, errors.Join(append(failures, err)...)
		}
	}

	if err := errors.Join(failures...); err != nil {
		return added, err
	}
	return added, nil
}

// UploadFile hashes file.Data, uploads it and returns the descriptor
// enriched with size, sha256, timestamps and any sniffed image info. The
// returned descriptor still carries Data.
func (n *InputNode) UploadFile(ctx context.Context, file *models.File) (*models.File, error) {
	if file.Name == "" || file.Data == nil {
		return nil, models.NoPermissions("upload needs a file name and data")
	}

	f := file.Clone()
	now := n.env.now().UTC()
	f.Size = int64(len(f.Data))
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.ModifiedAt = now
	f.Sha256 = models.HashBytes(f.Data)
	if f.ContentType == "" {
		f.ContentType, _ = models.ContentTypeForName(f.Name)
	}

	if err := n.env.upload(ctx, n.ID(), f, f.Data); err != nil {
		n.logger.WithError(err).WithField("file", f.Name).Error("Upload failed")
		return nil, err
	}
	return f, nil
}

// currentFileSet derives the file set from the attachment children, sorted
// by name and without data.
func (n *InputNode) currentFileSet() []*models.File {
	attachments := n.Attachments()
	files := make([]*models.File, 0, len(attachments))
	for _, a := range attachments {
		files = append(files, a.File())
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}

// updateFileSet pushes the file set derived from the children. On failure
// the previous file set is restored.
func (n *InputNode) updateFileSet(ctx context.Context) error {
	inputs, err := n.env.inputsClient()
	if err != nil {
		return err
	}

	next := n.currentFileSet()
	err = swapField(&n.mu, &n.input.FileSet, next, func() error {
		patch := &models.Input{ID: n.ID(), Login: n.Login(), FileSet: next}
		_, err := inputs.UpdateInput(ctx, patch, transport.Mask(models.PathFileSet))
		return err
	})
	if err != nil {
		n.logger.WithError(err).Warn("File set update failed, rolled back")
		return models.Unavailable(err, "update file set of %s", n.uri)
	}
	return nil
}

// UpdateStatus pushes a status change and swaps the content file for one
// named after the new status. On failure the previous status is restored.
func (n *InputNode) UpdateStatus(ctx context.Context, st models.Status) error {
	inputs, err := n.env.inputsClient()
	if err != nil {
		return err
	}

	prev := n.Status()
	var updated *models.Input
	err = swapField(&n.mu, &n.input.Status, st, func() error {
		patch := &models.Input{ID: n.ID(), Login: n.Login(), Status: st}
		var err error
		updated, err = inputs.UpdateInput(ctx, patch, transport.Mask(models.PathStatus))
		return err
	})
	if err != nil {
		n.logger.WithError(err).Warn("Status update failed, rolled back")
		return models.Unavailable(err, "update status of %s", n.uri)
	}
	if prev == st {
		return nil
	}

	n.mu.Lock()
	slug := n.input.Slug()
	n.mu.Unlock()

	var mtime time.Time
	if updated != nil {
		mtime = updated.UpdatedAt
	}
	old := n.ContentFile()
	repl := newContentFileNode(n, ContentFileName(slug, st), n.Ctime(), mtime)
	if old != nil {
		old.carry(repl)
		n.replaceChild(old.Name(), repl)
		n.env.notify(
			models.ChangeEvent{Type: models.ChangeDeleted, URI: old.URI()},
			models.ChangeEvent{Type: models.ChangeCreated, URI: repl.URI()},
		)
		n.env.replaced(old.URI(), repl.URI())
	} else {
		n.addChild(repl)
		n.env.notify(models.ChangeEvent{Type: models.ChangeCreated, URI: repl.URI()})
	}
	return nil
}

// UpdateTitle pushes a title change. On failure the previous title is
// restored. The node keeps its URI; the owning UserNode re-keys it.
func (n *InputNode) UpdateTitle(ctx context.Context, title string) (*models.Input, error) {
	if title == "" || strings.Contains(title, "/") {
		return nil, models.NoPermissions("invalid title %q", title)
	}

	inputs, err := n.env.inputsClient()
	if err != nil {
		return nil, err
	}

	var updated *models.Input
	err = swapField(&n.mu, &n.input.Title, title, func() error {
		patch := &models.Input{ID: n.ID(), Login: n.Login(), Title: title}
		var err error
		updated, err = inputs.UpdateInput(ctx, patch, transport.Mask(models.PathTitle))
		return err
	})
	if err != nil {
		n.logger.WithError(err).Warn("Title update failed, rolled back")
		return nil, models.Unavailable(err, "rename %s", n.uri)
	}

	n.mu.Lock()
	if updated != nil {
		n.input.TitleSlug = updated.TitleSlug
		n.input.UpdatedAt = updated.UpdatedAt
	} else {
		n.input.TitleSlug = models.Slugify(title)
	}
	snapshot := n.input.Clone()
	n.mu.Unlock()
	return snapshot, nil
}

// Rename renames an attachment and pushes the file set. The content file
// cannot be renamed.
func (n *InputNode) Rename(ctx context.Context, src, dst string) (Node, error) {
	child, ok := n.cachedChild(src).(*AttachmentNode)
	if !ok {
		if n.cachedChild(src) == nil {
			return nil, models.FileNotFound(JoinURI(n.uri, src))
		}
		return nil, models.NoPermissions("only attachments of %s can be renamed", n.uri)
	}
	if dst == "" || strings.Contains(dst, "/") {
		return nil, models.NoPermissions("invalid attachment name %q", dst)
	}
	if existing := n.cachedChild(dst); existing != nil {
		if _, ok := existing.(*AttachmentNode); !ok {
			return nil, models.NoPermissions("cannot replace %s", existing.URI())
		}
	}

	displaced := n.cachedChild(dst)
	repl := child.renamed(dst)
	n.replaceChild(src, repl)

	if err := n.updateFileSet(ctx); err != nil {
		n.replaceChild(dst, child)
		if displaced != nil {
			n.addChild(displaced)
		}
		return nil, err
	}
	return repl, nil
}

// DeleteChild removes an attachment and pushes the file set. On failure
// the child is restored.
func (n *InputNode) DeleteChild(ctx context.Context, name string) error {
	child := n.cachedChild(name)
	if child == nil {
		return models.FileNotFound(JoinURI(n.uri, name))
	}
	if _, ok := child.(*AttachmentNode); !ok {
		return models.NoPermissions("only attachments of %s can be deleted", n.uri)
	}

	n.removeChild(name)
	if err := n.updateFileSet(ctx); err != nil {
		n.addChild(child)
		return err
	}
	return nil
}

// retitled re-keys this node under the title the service reports.
func (n *InputNode) retitled(updated *models.Input) {
	n.mu.Lock()
	n.input.Title = updated.Title
	n.input.TitleSlug = updated.TitleSlug
	n.input.UpdatedAt = updated.UpdatedAt
	n.mu.Unlock()

	n.user.rekey(n)
}

// rebuilt returns a node for the same Input keyed as name, carrying cached
// content and attachment bytes.
func (n *InputNode) rebuilt(name string) *InputNode {
	snapshot := n.Input()
	snapshot.FileSet = nil
	repl := newInputNode(n.user, snapshot, name)

	if old, fresh := n.ContentFile(), repl.ContentFile(); old != nil && fresh != nil {
		old.carry(fresh)
	}
	for _, a := range n.Attachments() {
		a.mu.Lock()
		f := a.file.Clone()
		if a.loaded {
			f.Data = append([]byte(nil), a.data...)
		}
		a.mu.Unlock()
		repl.addChild(newAttachmentNode(repl, f))
	}
	repl.mu.Lock()
	repl.input.FileSet = n.FileSet()
	repl.mu.Unlock()
	repl.setTimes(n.Ctime(), time.Time{})
	return repl
}

var _ Directory = (*InputNode)(nil)
