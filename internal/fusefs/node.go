package fusefs

import (
	"context"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/streamfs"
)

// renameNoReplace is RENAME_NOREPLACE from renameat2(2).
const renameNoReplace = 0x1

// Node is one streamfs URI as seen by the kernel. Nodes hold no state of
// their own; every call resolves the URI against the filesystem.
type Node struct {
	gofuse.Inode
	fs     *streamfs.FS
	uri    string
	logger *events.Logger
}

var _ gofuse.InodeEmbedder = (*Node)(nil)
var _ gofuse.NodeGetattrer = (*Node)(nil)
var _ gofuse.NodeLookuper = (*Node)(nil)
var _ gofuse.NodeReaddirer = (*Node)(nil)
var _ gofuse.NodeOpener = (*Node)(nil)
var _ gofuse.NodeCreater = (*Node)(nil)
var _ gofuse.NodeMkdirer = (*Node)(nil)
var _ gofuse.NodeUnlinker = (*Node)(nil)
var _ gofuse.NodeRmdirer = (*Node)(nil)
var _ gofuse.NodeRenamer = (*Node)(nil)
var _ gofuse.NodeSetattrer = (*Node)(nil)

// NewRoot returns the node for "/".
func NewRoot(fs *streamfs.FS, logger *events.Logger) *Node {
	return &Node{fs: fs, uri: "/", logger: logger}
}

// URI is the filesystem URI this node stands for.
func (n *Node) URI() string {
	return n.uri
}

func (n *Node) child(name string) *Node {
	return &Node{fs: n.fs, uri: streamfs.JoinURI(n.uri, name), logger: n.logger}
}

func (n *Node) errno(op string, err error) syscall.Errno {
	errno := Errno(err)
	entry := n.logger.WithError(err).WithFields(map[string]interface{}{
		"op":  op,
		"uri": n.uri,
	})
	if errno == syscall.EIO {
		entry.Error("Filesystem call failed")
	} else {
		entry.Debug("Filesystem call rejected")
	}
	return errno
}

func fillAttr(st streamfs.FileStat, out *fuse.Attr) {
	if st.Type == streamfs.FileTypeDirectory {
		out.Mode = syscall.S_IFDIR | 0o755
	} else {
		out.Mode = syscall.S_IFREG | 0o644
		out.Size = uint64(st.Size)
		out.Blocks = (out.Size + 511) / 512
	}
	out.SetTimes(&st.Mtime, &st.Mtime, &st.Ctime)
}

func stableMode(st streamfs.FileStat) uint32 {
	if st.Type == streamfs.FileTypeDirectory {
		return syscall.S_IFDIR
	}
	return syscall.S_IFREG
}

func (n *Node) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if h, ok := fh.(*writeHandle); ok {
		out.Mode = syscall.S_IFREG | 0o644
		out.Size = uint64(h.size())
		return 0
	}
	st, err := n.fs.Stat(ctx, n.uri)
	if err != nil {
		return n.errno("getattr", err)
	}
	fillAttr(st, &out.Attr)
	return 0
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	child := n.child(name)
	st, err := n.fs.Stat(ctx, child.uri)
	if err != nil {
		return nil, Errno(err)
	}
	fillAttr(st, &out.Attr)
	return n.NewInode(ctx, child, gofuse.StableAttr{Mode: stableMode(st)}), 0
}

func (n *Node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, err := n.fs.ReadDirectory(ctx, n.uri)
	if err != nil {
		return nil, n.errno("readdir", err)
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(syscall.S_IFREG)
		if e.Type == streamfs.FileTypeDirectory {
			mode = syscall.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return gofuse.NewListDirStream(out), 0
}

func (n *Node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		h := &writeHandle{node: n}
		if flags&syscall.O_TRUNC != 0 {
			h.dirty = true
		} else {
			data, err := n.fs.ReadFile(ctx, n.uri)
			if err != nil {
				return nil, 0, n.errno("open", err)
			}
			h.buffer = data
		}
		return h, fuse.FOPEN_DIRECT_IO, 0
	}

	data, err := n.fs.ReadFile(ctx, n.uri)
	if err != nil {
		return nil, 0, n.errno("open", err)
	}
	return &readHandle{data: data}, fuse.FOPEN_DIRECT_IO, 0
}

// Create defers the write to the first flush; the file does not exist
// remotely until its content is known.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	child := n.child(name)
	if _, err := n.fs.Stat(ctx, child.uri); err == nil {
		return nil, nil, 0, syscall.EEXIST
	}

	out.Mode = syscall.S_IFREG | 0o644
	h := &writeHandle{node: child, create: true, dirty: true}
	inode := n.NewInode(ctx, child, gofuse.StableAttr{Mode: syscall.S_IFREG})
	return inode, h, fuse.FOPEN_DIRECT_IO, 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	child := n.child(name)
	if err := n.fs.CreateDirectory(ctx, child.uri); err != nil {
		return nil, child.errno("mkdir", err)
	}
	st, err := n.fs.Stat(ctx, child.uri)
	if err != nil {
		return nil, child.errno("mkdir", err)
	}
	fillAttr(st, &out.Attr)
	return n.NewInode(ctx, child, gofuse.StableAttr{Mode: syscall.S_IFDIR}), 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	child := n.child(name)
	if err := n.fs.Delete(ctx, child.uri); err != nil {
		return child.errno("unlink", err)
	}
	return 0
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	child := n.child(name)
	if err := n.fs.Delete(ctx, child.uri); err != nil {
		return child.errno("rmdir", err)
	}
	return 0
}

func (n *Node) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	parent, ok := newParent.(*Node)
	if !ok {
		return syscall.EXDEV
	}
	from, to := n.child(name), parent.child(newName)
	if err := n.fs.Rename(ctx, from.uri, to.uri, flags&renameNoReplace == 0); err != nil {
		return from.errno("rename", err)
	}
	return 0
}

// Setattr only honours truncation of an open write handle. Other
// attributes are owned by the service.
func (n *Node) Setattr(ctx context.Context, fh gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		h, isWrite := fh.(*writeHandle)
		if !isWrite {
			return syscall.EACCES
		}
		h.truncate(int64(size))
	}
	return n.Getattr(ctx, fh, out)
}
