package streamfs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
)

// errAborted reports that the user declined a confirmation. The facade
// treats it as a silent no-op.
var errAborted = errors.New("aborted by user")

type loadState int

const (
	stateNotLoaded loadState = iota
	stateLoaded
)

// UserNode lists the Inputs owned by one login. The listing is fetched once;
// unknown names fall back to a lookup by title.
type UserNode struct {
	dirNode
	login  string
	env    *env
	logger *events.Logger

	loadMu sync.Mutex
	state  loadState
}

func newUserNode(e *env, login string, now time.Time) *UserNode {
	return &UserNode{
		dirNode: newDirNode(KindUser, JoinURI("/", login), now, now),
		login:   login,
		env:     e,
		logger:  e.logger.WithField("login", login),
	}
}

// Login returns the account this directory belongs to.
func (u *UserNode) Login() string {
	return u.login
}

// Loaded reports whether the listing has been fetched.
func (u *UserNode) Loaded() bool {
	u.loadMu.Lock()
	defer u.loadMu.Unlock()
	return u.state == stateLoaded
}

func (u *UserNode) load(ctx context.Context) error {
	u.loadMu.Lock()
	defer u.loadMu.Unlock()
	if u.state == stateLoaded {
		return nil
	}

	inputs, err := u.env.inputsClient()
	if err != nil {
		return err
	}

	list, err := inputs.ListInputs(ctx, models.InputFilter{Login: u.login})
	if err != nil {
		return models.Unavailable(err, "list inputs of %s", u.login)
	}
	for _, in := range list {
		if u.inputByID(in.ID) == nil {
			u.addChild(newInputNode(u, in, u.entryName(in.Title, in.ID, nil)))
		}
	}
	u.state = stateLoaded

	u.logger.WithField("count", len(list)).Debug("Loaded inputs")
	return nil
}

// Children lists the Inputs, fetching them on first use.
func (u *UserNode) Children(ctx context.Context) ([]Node, error) {
	if err := u.load(ctx); err != nil {
		return nil, err
	}
	return u.cachedChildren(), nil
}

// Child returns the named Input. On a cache miss the Inputs service is
// asked for a document with that title; nil means there is none.
func (u *UserNode) Child(ctx context.Context, name string) (Node, error) {
	if c := u.cachedChild(name); c != nil {
		return c, nil
	}
	if err := u.load(ctx); err != nil {
		return nil, err
	}
	if c := u.cachedChild(name); c != nil {
		return c, nil
	}

	inputs, err := u.env.inputsClient()
	if err != nil {
		return nil, err
	}
	in, err := inputs.GetInput(ctx, models.InputFilter{Login: u.login, Title: name}, nil)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.Unavailable(err, "look up %q", name)
	}

	if cached := u.inputByID(in.ID); cached != nil {
		// Known under another entry name.
		if cached.Name() != name {
			return nil, nil
		}
		return cached, nil
	}
	node := newInputNode(u, in, u.entryName(in.Title, in.ID, nil))
	u.addChild(node)
	u.logger.WithField("title", name).Debug("Resolved unlisted input")
	return node, nil
}

// titleSegment turns a title into a path segment. A slash is shown as
// U+2215; titles that cannot name an entry fall back to the Input ID.
func titleSegment(title, id string) string {
	name := strings.ReplaceAll(title, "/", "\u2215")
	switch strings.TrimSpace(name) {
	case "", ".", "..":
		return id
	}
	return name
}

// entryName picks the directory entry name for an Input. When another
// Input already holds the name the ID is appended, so siblings are never
// displaced. self is the node being re-keyed, if any.
func (u *UserNode) entryName(title, id string, self Node) string {
	name := titleSegment(title, id)
	if c := u.cachedChild(name); c == nil || c == self {
		return name
	}
	u.logger.WithFields(map[string]interface{}{
		"title":    title,
		"input_id": id,
	}).Warn("Input title clashes with a sibling")

	base := name + " (" + id + ")"
	name = base
	for i := 2; ; i++ {
		if c := u.cachedChild(name); c == nil || c == self {
			return name
		}
		name = fmt.Sprintf("%s %d", base, i)
	}
}

func (u *UserNode) inputByID(id string) *InputNode {
	for _, c := range u.cachedChildren() {
		if n, ok := c.(*InputNode); ok && n.ID() == id {
			return n
		}
	}
	return nil
}

// Input returns the cached Input node with the given title.
func (u *UserNode) Input(title string) *InputNode {
	n, _ := u.cachedChild(title).(*InputNode)
	return n
}

func validTitle(title string) error {
	if strings.TrimSpace(title) == "" || strings.Contains(title, "/") {
		return models.NoPermissions("invalid title %q", title)
	}
	return nil
}

// CreateDirectory creates a draft Input titled name and schedules opening
// its content file.
func (u *UserNode) CreateDirectory(ctx context.Context, name string) (Directory, error) {
	if err := validTitle(name); err != nil {
		return nil, err
	}
	if u.cachedChild(name) != nil {
		return nil, models.FileExists(JoinURI(u.uri, name))
	}
	inputs, err := u.env.inputsClient()
	if err != nil {
		return nil, err
	}

	in, err := inputs.CreateInput(ctx, &models.Input{
		Login:  u.login,
		Title:  name,
		Status: models.StatusDraft,
		Type:   models.TypeText,
	})
	if errors.Is(err, models.ErrAlreadyExists) {
		return nil, models.FileExists(JoinURI(u.uri, name))
	}
	if err != nil {
		return nil, models.Unavailable(err, "create input %q", name)
	}

	node := newInputNode(u, in, u.entryName(in.Title, in.ID, nil))
	u.addChild(node)
	if cf := node.ContentFile(); cf != nil {
		u.env.open(cf.URI())
	}

	u.logger.WithFields(map[string]interface{}{
		"input_id": in.ID,
		"title":    in.Title,
	}).Info("Created input")
	return node, nil
}

// DeleteChild removes an Input after the user confirms. A declined prompt
// returns errAborted.
func (u *UserNode) DeleteChild(ctx context.Context, name string) error {
	child, err := u.Child(ctx, name)
	if err != nil {
		return err
	}
	node, ok := child.(*InputNode)
	if !ok {
		return models.FileNotFound(JoinURI(u.uri, name))
	}

	confirmed, err := u.env.confirmDelete(ctx, node.URI())
	if err != nil {
		return err
	}
	if !confirmed {
		return errAborted
	}

	inputs, err := u.env.inputsClient()
	if err != nil {
		return err
	}
	if err := inputs.RemoveInput(ctx, node.ID()); err != nil {
		return models.Unavailable(err, "delete %s", node.URI())
	}
	u.removeChild(node.Name())

	u.logger.WithField("input_id", node.ID()).Info("Deleted input")
	return nil
}

// Rename retitles an Input. The node is replaced by one keyed under the new
// title.
func (u *UserNode) Rename(ctx context.Context, src, dst string) (Node, error) {
	if err := validTitle(dst); err != nil {
		return nil, err
	}
	child, err := u.Child(ctx, src)
	if err != nil {
		return nil, err
	}
	node, ok := child.(*InputNode)
	if !ok {
		return nil, models.FileNotFound(JoinURI(u.uri, src))
	}
	if u.cachedChild(dst) != nil {
		return nil, models.FileExists(JoinURI(u.uri, dst))
	}

	if _, err := node.UpdateTitle(ctx, dst); err != nil {
		return nil, err
	}
	repl := node.rebuilt(dst)
	u.replaceChild(node.Name(), repl)
	return repl, nil
}

// rekey moves an Input whose title changed remotely under its new name.
func (u *UserNode) rekey(node *InputNode) {
	oldName := node.Name()
	if u.cachedChild(oldName) != Node(node) {
		return
	}

	name := u.entryName(node.Title(), node.ID(), node)
	if name == oldName {
		return
	}
	repl := node.rebuilt(name)
	u.replaceChild(oldName, repl)

	u.env.notify(
		models.ChangeEvent{Type: models.ChangeDeleted, URI: node.URI()},
		models.ChangeEvent{Type: models.ChangeCreated, URI: repl.URI()},
	)
	if oldCF, newCF := node.ContentFile(), repl.ContentFile(); oldCF != nil && newCF != nil {
		u.env.replaced(oldCF.URI(), newCF.URI())
	}

	u.logger.WithFields(map[string]interface{}{
		"from": oldName,
		"to":   repl.Name(),
	}).Info("Input retitled")
}

var _ Directory = (*UserNode)(nil)
