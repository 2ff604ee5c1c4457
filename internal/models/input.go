package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the publication state of an Input.
type Status int32

const (
	StatusUnspecified Status = iota
	StatusDraft
	StatusPublished
)

var statusNames = map[Status]string{
	StatusUnspecified: "STATUS_UNSPECIFIED",
	StatusDraft:       "STATUS_DRAFT",
	StatusPublished:   "STATUS_PUBLISHED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_%d", int32(s))
}

// ParseStatus accepts the wire name ("STATUS_DRAFT") or the short form ("draft").
func ParseStatus(s string) (Status, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(upper, "STATUS_") {
		upper = "STATUS_" + upper
	}
	for status, name := range statusNames {
		if name == upper {
			return status, nil
		}
	}
	return StatusUnspecified, fmt.Errorf("unknown status %q", s)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		var n int32
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("status must be a string or number: %w", err)
		}
		*s = Status(n)
		return nil
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// InputType classifies the kind of post an Input is.
type InputType int32

const (
	TypeUnspecified InputType = iota
	TypeText
	TypeLink
)

// Content wraps the body of an Input. Only the markdown variant exists today.
type Content struct {
	Markdown string `json:"markdown"`
}

// Input is one remote document: a short post with a markdown body and attachments.
type Input struct {
	ID        string    `json:"id"`
	Login     string    `json:"login"`
	Title     string    `json:"title"`
	TitleSlug string    `json:"title_slug,omitempty"`
	Status    Status    `json:"status"`
	Type      InputType `json:"type,omitempty"`
	Content   *Content  `json:"content,omitempty"`
	FileSet   []*File   `json:"file_set,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Slug returns the title slug, deriving it from the title when the server
// did not supply one.
func (i *Input) Slug() string {
	if i.TitleSlug != "" {
		return i.TitleSlug
	}
	return Slugify(i.Title)
}

// Clone returns a deep copy.
func (i *Input) Clone() *Input {
	if i == nil {
		return nil
	}
	c := *i
	if i.Content != nil {
		content := *i.Content
		c.Content = &content
	}
	if i.FileSet != nil {
		c.FileSet = make([]*File, len(i.FileSet))
		for idx, f := range i.FileSet {
			c.FileSet[idx] = f.Clone()
		}
	}
	return &c
}

// Validate checks the fields every stored Input must carry.
func (i *Input) Validate() error {
	if strings.TrimSpace(i.Login) == "" {
		return fmt.Errorf("input login is required")
	}
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("input title is required")
	}
	for _, f := range i.FileSet {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("file %q: %w", f.Name, err)
		}
	}
	return nil
}

// InputFilter selects Inputs. GetInput uses {Login, ID} or {Login, Title};
// ListInputs uses Login.
type InputFilter struct {
	Login string `json:"login,omitempty"`
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

func (f InputFilter) String() string {
	switch {
	case f.ID != "":
		return fmt.Sprintf("login=%s id=%s", f.Login, f.ID)
	case f.Title != "":
		return fmt.Sprintf("login=%s title=%q", f.Login, f.Title)
	default:
		return fmt.Sprintf("login=%s", f.Login)
	}
}

// Update mask paths understood by the Inputs service.
const (
	PathContent = "content"
	PathStatus  = "status"
	PathTitle   = "title"
	PathFileSet = "file_set"
)
