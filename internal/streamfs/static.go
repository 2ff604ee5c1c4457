package streamfs

import (
	"context"
	"time"

	"github.com/TheMichaelB/streamfs/internal/models"
)

// VscodeSettings is the content of .vscode/settings.json at the root.
var VscodeSettings = []byte(`{
  "files.autoSave": "off",
  "files.exclude": {
    "**/.vscode": true
  },
  "workbench.editor.enablePreview": false
}
`)

// RootNode is the single top-level directory. Its children are UserNodes and
// scaffolding; the host cannot create or delete them.
type RootNode struct {
	dirNode
}

func newRootNode(now time.Time) *RootNode {
	root := &RootNode{dirNode: newDirNode(KindRoot, "/", now, now)}
	root.addChild(NewVscodeDirectoryNode(now))
	return root
}

// StaticDirectoryNode is fixed scaffolding with no remote backing.
type StaticDirectoryNode struct {
	dirNode
}

// NewStaticDirectoryNode creates a directory at uri holding children.
func NewStaticDirectoryNode(uri string, now time.Time, children ...Node) *StaticDirectoryNode {
	d := &StaticDirectoryNode{dirNode: newDirNode(KindStaticDir, uri, now, now)}
	for _, c := range children {
		d.addChild(c)
	}
	return d
}

// NewVscodeDirectoryNode creates the /.vscode folder with editor settings.
func NewVscodeDirectoryNode(now time.Time) *StaticDirectoryNode {
	return NewStaticDirectoryNode("/.vscode", now,
		NewStaticFileNode("/.vscode/settings.json", VscodeSettings, now))
}

// StaticFileNode is a read-only file with fixed content.
type StaticFileNode struct {
	baseNode
	data []byte
}

// NewStaticFileNode creates a read-only file.
func NewStaticFileNode(uri string, data []byte, now time.Time) *StaticFileNode {
	return &StaticFileNode{
		baseNode: newBaseNode(KindStaticFile, uri, now, now),
		data:     data,
	}
}

// Size implements Node.
func (f *StaticFileNode) Size() int64 {
	return int64(len(f.data))
}

// Data implements File.
func (f *StaticFileNode) Data(ctx context.Context) ([]byte, error) {
	return append([]byte(nil), f.data...), nil
}

// SetData implements File. Static files are read-only.
func (f *StaticFileNode) SetData(ctx context.Context, data []byte) error {
	return models.NoPermissions("%s is read-only", f.uri)
}

var (
	_ Directory = (*RootNode)(nil)
	_ Directory = (*StaticDirectoryNode)(nil)
	_ File      = (*StaticFileNode)(nil)
)
