// Package streamfs models users, Inputs and their files as a lazily
// populated directory tree backed by the Inputs and ByteStream services,
// and exposes it through a filesystem-provider facade.
package streamfs

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/streamfs/internal/models"
)

// Scheme is the URI scheme of the virtual filesystem.
const Scheme = "streamfs"

// Kind tags every node variant in the graph.
type Kind int

const (
	KindRoot Kind = iota
	KindStaticDir
	KindUser
	KindInput
	KindStaticFile
	KindContentFile
	KindAttachment
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindStaticDir:
		return "static_dir"
	case KindUser:
		return "user"
	case KindInput:
		return "input"
	case KindStaticFile:
		return "static_file"
	case KindContentFile:
		return "content_file"
	case KindAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// IsDirectory reports whether nodes of this kind have children.
func (k Kind) IsDirectory() bool {
	switch k {
	case KindRoot, KindStaticDir, KindUser, KindInput:
		return true
	}
	return false
}

// Node is identity plus timestamps. A node's URI never changes; renaming
// replaces the node.
type Node interface {
	Kind() Kind
	URI() string
	Name() string
	Ctime() time.Time
	Mtime() time.Time
	// Size is the length of loaded data, or 0 while unknown.
	Size() int64
}

// Directory is a node with children. Mutations are denied unless the
// variant supports them.
type Directory interface {
	Node
	// Child returns the named child or nil. Only variants backed by a
	// remote service fetch on a miss.
	Child(ctx context.Context, name string) (Node, error)
	Children(ctx context.Context) ([]Node, error)
	CreateFile(ctx context.Context, name string, data []byte) (File, error)
	CreateDirectory(ctx context.Context, name string) (Directory, error)
	// Rename replaces the child src with a node named dst and returns it.
	Rename(ctx context.Context, src, dst string) (Node, error)
	DeleteChild(ctx context.Context, name string) error
}

// File is a node with byte content.
type File interface {
	Node
	Data(ctx context.Context) ([]byte, error)
	SetData(ctx context.Context, data []byte) error
}

// Selector short-circuits a lookup at the first matching node.
type Selector func(Node) bool

// IsKind selects nodes of kind k.
func IsKind(k Kind) Selector {
	return func(n Node) bool { return n.Kind() == k }
}

// CleanURI normalizes a URI or path into the absolute path used as node
// identity. The streamfs: scheme prefix is optional.
func CleanURI(uri string) string {
	uri = strings.TrimPrefix(uri, Scheme+":")
	return path.Clean("/" + uri)
}

// JoinURI appends a child name to a parent URI.
func JoinURI(parent, name string) string {
	return path.Join(parent, name)
}

// SplitURI returns the parent URI and the last segment.
func SplitURI(uri string) (parent, name string) {
	uri = CleanURI(uri)
	return path.Dir(uri), path.Base(uri)
}

func segments(uri string) []string {
	var out []string
	for _, s := range strings.Split(CleanURI(uri), "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// baseNode carries identity and timestamps.
type baseNode struct {
	kind Kind
	uri  string
	name string

	timesMu sync.RWMutex
	ctime   time.Time
	mtime   time.Time
}

func newBaseNode(kind Kind, uri string, ctime, mtime time.Time) baseNode {
	uri = CleanURI(uri)
	name := path.Base(uri)
	if uri == "/" {
		name = ""
	}
	return baseNode{kind: kind, uri: uri, name: name, ctime: ctime, mtime: mtime}
}

func (n *baseNode) Kind() Kind   { return n.kind }
func (n *baseNode) URI() string  { return n.uri }
func (n *baseNode) Name() string { return n.name }
func (n *baseNode) Size() int64  { return 0 }

func (n *baseNode) Ctime() time.Time {
	n.timesMu.RLock()
	defer n.timesMu.RUnlock()
	return n.ctime
}

func (n *baseNode) Mtime() time.Time {
	n.timesMu.RLock()
	defer n.timesMu.RUnlock()
	return n.mtime
}

func (n *baseNode) setTimes(ctime, mtime time.Time) {
	n.timesMu.Lock()
	defer n.timesMu.Unlock()
	if !ctime.IsZero() {
		n.ctime = ctime
	}
	if !mtime.IsZero() {
		n.mtime = mtime
	}
}

// dirNode is an insertion-ordered child map. It never fetches and its
// mutations are denied; remote-backed variants override what they support.
type dirNode struct {
	baseNode

	childMu  sync.RWMutex
	names    []string
	children map[string]Node
}

func newDirNode(kind Kind, uri string, ctime, mtime time.Time) dirNode {
	return dirNode{
		baseNode: newBaseNode(kind, uri, ctime, mtime),
		children: make(map[string]Node),
	}
}

// cachedChild returns the child without fetching.
func (d *dirNode) cachedChild(name string) Node {
	d.childMu.RLock()
	defer d.childMu.RUnlock()
	if c, ok := d.children[name]; ok {
		return c
	}
	return nil
}

func (d *dirNode) cachedChildren() []Node {
	d.childMu.RLock()
	defer d.childMu.RUnlock()
	out := make([]Node, 0, len(d.names))
	for _, name := range d.names {
		out = append(out, d.children[name])
	}
	return out
}

// addChild inserts or replaces a child. A replaced child keeps its position.
func (d *dirNode) addChild(child Node) {
	d.childMu.Lock()
	defer d.childMu.Unlock()
	name := child.Name()
	if _, exists := d.children[name]; !exists {
		d.names = append(d.names, name)
	}
	d.children[name] = child
}

// removeChild detaches a child and reports whether it was present.
func (d *dirNode) removeChild(name string) (Node, bool) {
	d.childMu.Lock()
	defer d.childMu.Unlock()
	child, ok := d.children[name]
	if !ok {
		return nil, false
	}
	delete(d.children, name)
	for i, n := range d.names {
		if n == name {
			d.names = append(d.names[:i], d.names[i+1:]...)
			break
		}
	}
	return child, true
}

// replaceChild swaps old for repl at old's position.
func (d *dirNode) replaceChild(oldName string, repl Node) {
	d.childMu.Lock()
	defer d.childMu.Unlock()
	newName := repl.Name()
	if _, ok := d.children[oldName]; !ok {
		d.names = append(d.names, newName)
		d.children[newName] = repl
		return
	}
	delete(d.children, oldName)
	if _, clash := d.children[newName]; clash {
		for i, n := range d.names {
			if n == newName {
				d.names = append(d.names[:i], d.names[i+1:]...)
				break
			}
		}
	}
	for i, n := range d.names {
		if n == oldName {
			d.names[i] = newName
			break
		}
	}
	d.children[newName] = repl
}

func (d *dirNode) Child(ctx context.Context, name string) (Node, error) {
	return d.cachedChild(name), nil
}

func (d *dirNode) Children(ctx context.Context) ([]Node, error) {
	return d.cachedChildren(), nil
}

func (d *dirNode) CreateFile(ctx context.Context, name string, data []byte) (File, error) {
	return nil, models.NoPermissions("cannot create files in %s", d.uri)
}

func (d *dirNode) CreateDirectory(ctx context.Context, name string) (Directory, error) {
	return nil, models.NoPermissions("cannot create directories in %s", d.uri)
}

func (d *dirNode) Rename(ctx context.Context, src, dst string) (Node, error) {
	return nil, models.NoPermissions("cannot rename entries of %s", d.uri)
}

func (d *dirNode) DeleteChild(ctx context.Context, name string) error {
	return models.NoPermissions("cannot delete entries of %s", d.uri)
}
