package streamfs

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/TheMichaelB/streamfs/internal/blobcache"
	"github.com/TheMichaelB/streamfs/internal/config"
	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/transport"
)

// Uploader publishes a file to the image host. FS.Copy delegates to it.
type Uploader func(ctx context.Context, source File, target *url.URL) error

// Options configures an FS.
type Options struct {
	Inputs   transport.InputsClient
	Blobs    transport.BlobClient
	Cache    blobcache.Cache
	Hooks    Hooks
	Logger   *events.Logger
	Transfer config.TransferConfig
	Uploader Uploader
	Now      func() time.Time
}

// FileType distinguishes files from directories in Stat results.
type FileType int

const (
	FileTypeFile FileType = iota + 1
	FileTypeDirectory
)

func (t FileType) String() string {
	if t == FileTypeDirectory {
		return "directory"
	}
	return "file"
}

// FileStat describes a node.
type FileStat struct {
	Type  FileType
	Kind  Kind
	Ctime time.Time
	Mtime time.Time
	Size  int64
}

// DirEntry is one entry of ReadDirectory.
type DirEntry struct {
	Name string
	Type FileType
}

// WriteOptions controls WriteFile.
type WriteOptions struct {
	Create    bool
	Overwrite bool
}

// FS resolves URIs against the node graph and implements the provider
// operations. Every successful mutation emits one batched change event.
type FS struct {
	env       *env
	root      *RootNode
	batcher   *Batcher
	uploader  Uploader
	imageHost string
	logger    *events.Logger
}

// New creates a filesystem with an empty root.
func New(opts Options) *FS {
	logger := opts.Logger
	if logger == nil {
		logger = events.Default()
	}
	logger = logger.WithField("component", "streamfs")

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cache := opts.Cache
	if cache == nil {
		cache = blobcache.Nop{}
	}

	tc := opts.Transfer
	if tc.ChunkSize <= 0 {
		tc.ChunkSize = DefaultChunkSize
	}
	if tc.MaxBodySize <= 0 {
		tc.MaxBodySize = DefaultMaxBodySize
	}
	if tc.MaxConcurrent <= 0 {
		tc.MaxConcurrent = DefaultMaxConcurrent
	}

	batcher := NewBatcher(tc.ChangeDebounce)
	e := &env{
		inputs:        opts.Inputs,
		blobs:         opts.Blobs,
		cache:         cache,
		hooks:         opts.Hooks,
		logger:        logger,
		chunkSize:     tc.ChunkSize,
		maxBodySize:   tc.MaxBodySize,
		maxConcurrent: tc.MaxConcurrent,
		now:           now,
		emit:          batcher.Push,
	}

	return &FS{
		env:       e,
		root:      newRootNode(now()),
		batcher:   batcher,
		uploader:  opts.Uploader,
		imageHost: tc.ImageHost,
		logger:    logger,
	}
}

// Root returns the top-level directory.
func (fs *FS) Root() *RootNode {
	return fs.root
}

// AddUser materializes the directory of login under the root.
func (fs *FS) AddUser(login string) *UserNode {
	if u, ok := fs.root.cachedChild(login).(*UserNode); ok {
		return u
	}
	u := newUserNode(fs.env, login, fs.env.now())
	fs.root.addChild(u)
	fs.env.notify(models.ChangeEvent{Type: models.ChangeCreated, URI: u.URI()})
	return u
}

// RemoveUser drops the directory of login.
func (fs *FS) RemoveUser(login string) {
	if _, ok := fs.root.cachedChild(login).(*UserNode); !ok {
		return
	}
	fs.root.removeChild(login)
	fs.env.notify(models.ChangeEvent{Type: models.ChangeDeleted, URI: JoinURI("/", login)})
}

// Users returns the materialized user directories.
func (fs *FS) Users() []*UserNode {
	var out []*UserNode
	for _, c := range fs.root.cachedChildren() {
		if u, ok := c.(*UserNode); ok {
			out = append(out, u)
		}
	}
	return out
}

// Lookup walks uri from the root, loading directories on the way. With
// silent set a missing path yields (nil, nil) instead of FileNotFound. The
// walk stops at the first node any selector matches.
func (fs *FS) Lookup(ctx context.Context, uri string, silent bool, selectors ...Selector) (Node, error) {
	uri = CleanURI(uri)
	var cur Node = fs.root
	for _, seg := range segments(uri) {
		dir, ok := cur.(Directory)
		if !ok {
			return fs.miss(uri, silent)
		}
		child, err := dir.Child(ctx, seg)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return fs.miss(uri, silent)
		}
		for _, sel := range selectors {
			if sel(child) {
				return child, nil
			}
		}
		cur = child
	}
	return cur, nil
}

func (fs *FS) miss(uri string, silent bool) (Node, error) {
	if silent {
		return nil, nil
	}
	return nil, models.FileNotFound(uri)
}

// LookupInput returns the Input node containing uri.
func (fs *FS) LookupInput(ctx context.Context, uri string) (*InputNode, error) {
	n, err := fs.Lookup(ctx, uri, false, IsKind(KindInput))
	if err != nil {
		return nil, err
	}
	in, ok := n.(*InputNode)
	if !ok {
		return nil, models.FileNotFound(CleanURI(uri))
	}
	return in, nil
}

// LookupUser returns the user directory containing uri.
func (fs *FS) LookupUser(ctx context.Context, uri string) (*UserNode, error) {
	n, err := fs.Lookup(ctx, uri, false, IsKind(KindUser))
	if err != nil {
		return nil, err
	}
	u, ok := n.(*UserNode)
	if !ok {
		return nil, models.FileNotFound(CleanURI(uri))
	}
	return u, nil
}

func (fs *FS) lookupDir(ctx context.Context, uri string) (Directory, error) {
	n, err := fs.Lookup(ctx, uri, false)
	if err != nil {
		return nil, err
	}
	dir, ok := n.(Directory)
	if !ok {
		return nil, models.FileNotADirectory(CleanURI(uri))
	}
	return dir, nil
}

func fileType(n Node) FileType {
	if _, ok := n.(Directory); ok {
		return FileTypeDirectory
	}
	return FileTypeFile
}

// Stat describes the node at uri.
func (fs *FS) Stat(ctx context.Context, uri string) (FileStat, error) {
	n, err := fs.Lookup(ctx, uri, false)
	if err != nil {
		return FileStat{}, err
	}
	return FileStat{
		Type:  fileType(n),
		Kind:  n.Kind(),
		Ctime: n.Ctime(),
		Mtime: n.Mtime(),
		Size:  n.Size(),
	}, nil
}

// ReadDirectory lists the directory at uri.
func (fs *FS) ReadDirectory(ctx context.Context, uri string) ([]DirEntry, error) {
	dir, err := fs.lookupDir(ctx, uri)
	if err != nil {
		return nil, err
	}
	children, err := dir.Children(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]DirEntry, 0, len(children))
	for _, c := range children {
		entries = append(entries, DirEntry{Name: c.Name(), Type: fileType(c)})
	}
	return entries, nil
}

// ReadFile returns the content of the file at uri.
func (fs *FS) ReadFile(ctx context.Context, uri string) ([]byte, error) {
	n, err := fs.Lookup(ctx, uri, false)
	if err != nil {
		return nil, err
	}
	f, ok := n.(File)
	if !ok {
		return nil, models.FileIsADirectory(CleanURI(uri))
	}
	return f.Data(ctx)
}

// WriteFile creates or replaces the file at uri through its parent
// directory.
func (fs *FS) WriteFile(ctx context.Context, uri string, data []byte, opts WriteOptions) error {
	uri = CleanURI(uri)
	if uri == "/" {
		return models.FileIsADirectory(uri)
	}
	parentURI, name := SplitURI(uri)
	parent, err := fs.lookupDir(ctx, parentURI)
	if err != nil {
		return err
	}

	child, err := parent.Child(ctx, name)
	if err != nil {
		return err
	}
	if _, isDir := child.(Directory); isDir {
		return models.FileIsADirectory(uri)
	}
	if child == nil && !opts.Create {
		return models.FileNotFound(uri)
	}
	if child != nil && opts.Create && !opts.Overwrite {
		return models.FileExists(uri)
	}

	if child == nil {
		created, err := parent.CreateFile(ctx, name, data)
		if err != nil {
			return err
		}
		fs.env.notify(models.ChangeEvent{Type: models.ChangeCreated, URI: created.URI()})
		return nil
	}

	f, ok := child.(File)
	if !ok {
		return models.FileIsADirectory(uri)
	}
	if err := f.SetData(ctx, data); err != nil {
		return err
	}
	fs.env.notify(models.ChangeEvent{Type: models.ChangeChanged, URI: uri})
	return nil
}

// CreateDirectory creates a directory at uri through its parent.
func (fs *FS) CreateDirectory(ctx context.Context, uri string) error {
	uri = CleanURI(uri)
	if uri == "/" {
		return models.FileExists(uri)
	}
	parentURI, name := SplitURI(uri)
	parent, err := fs.lookupDir(ctx, parentURI)
	if err != nil {
		return err
	}
	existing, err := parent.Child(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil {
		return models.FileExists(uri)
	}

	created, err := parent.CreateDirectory(ctx, name)
	if err != nil {
		return err
	}
	fs.env.notify(models.ChangeEvent{Type: models.ChangeCreated, URI: created.URI()})
	return nil
}

// Rename moves oldURI to newURI within the same directory.
func (fs *FS) Rename(ctx context.Context, oldURI, newURI string, overwrite bool) error {
	oldURI, newURI = CleanURI(oldURI), CleanURI(newURI)
	oldParent, oldName := SplitURI(oldURI)
	newParent, newName := SplitURI(newURI)
	if oldURI == "/" || newURI == "/" {
		return models.NoPermissions("cannot rename the root")
	}
	if oldParent != newParent {
		return models.NoPermissions("cannot move %s to another directory", oldURI)
	}

	parent, err := fs.lookupDir(ctx, oldParent)
	if err != nil {
		return err
	}
	src, err := parent.Child(ctx, oldName)
	if err != nil {
		return err
	}
	if src == nil {
		return models.FileNotFound(oldURI)
	}
	dst, err := parent.Child(ctx, newName)
	if err != nil {
		return err
	}
	if dst != nil && !overwrite {
		return models.FileExists(newURI)
	}

	repl, err := parent.Rename(ctx, oldName, newName)
	if err != nil {
		return err
	}
	fs.env.notify(
		models.ChangeEvent{Type: models.ChangeDeleted, URI: oldURI},
		models.ChangeEvent{Type: models.ChangeCreated, URI: repl.URI()},
	)
	return nil
}

// Delete removes the node at uri through its parent. A declined
// confirmation is not an error and emits nothing.
func (fs *FS) Delete(ctx context.Context, uri string) error {
	uri = CleanURI(uri)
	if uri == "/" {
		return models.NoPermissions("cannot delete the root")
	}
	parentURI, name := SplitURI(uri)
	parent, err := fs.lookupDir(ctx, parentURI)
	if err != nil {
		return err
	}
	child, err := parent.Child(ctx, name)
	if err != nil {
		return err
	}
	if child == nil {
		return models.FileNotFound(uri)
	}

	if err := parent.DeleteChild(ctx, name); err != nil {
		if errors.Is(err, errAborted) {
			fs.logger.WithField("uri", uri).Debug("Delete not confirmed")
			return nil
		}
		return err
	}
	fs.env.notify(models.ChangeEvent{Type: models.ChangeDeleted, URI: uri})
	return nil
}

// Copy hands source to the uploader when target names the image host.
func (fs *FS) Copy(ctx context.Context, source, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return models.NoPermissions("invalid copy target %q", target)
	}
	if fs.uploader == nil || fs.imageHost == "" || u.Host != fs.imageHost {
		return models.NoPermissions("copy to %s is not supported", target)
	}

	n, err := fs.Lookup(ctx, source, false)
	if err != nil {
		return err
	}
	f, ok := n.(File)
	if !ok {
		return models.FileIsADirectory(CleanURI(source))
	}
	return fs.uploader(ctx, f, u)
}

// Watch is a no-op. Changes are pushed to subscribers.
func (fs *FS) Watch(uri string) func() {
	return func() {}
}

// Subscribe registers fn for batched change events.
func (fs *FS) Subscribe(fn func([]models.ChangeEvent)) func() {
	return fs.batcher.Subscribe(fn)
}

// Flush delivers pending change events now.
func (fs *FS) Flush() {
	fs.batcher.Flush()
}

// Close delivers pending events and stops the batcher.
func (fs *FS) Close() error {
	fs.batcher.Flush()
	fs.batcher.Stop()
	return nil
}
