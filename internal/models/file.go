package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// File describes one attachment of an Input. Its durable blob identity is
// (Sha256, Size); Name and the remaining metadata are descriptive only.
type File struct {
	Name        string     `json:"name"`
	Size        int64      `json:"size"`
	Sha256      string     `json:"sha256,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ModifiedAt  time.Time  `json:"modified_at"`
	ImageInfo   *ImageInfo `json:"image_info,omitempty"`

	// Data holds raw bytes while an upload is being prepared. It is never
	// persisted.
	Data []byte `json:"-"`
}

// ImageInfo carries dimensions sniffed from an uploaded image.
type ImageInfo struct {
	Height      int32 `json:"height"`
	Width       int32 `json:"width"`
	Orientation int32 `json:"orientation,omitempty"`
}

// Clone returns a deep copy, including any cached Data.
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	c := *f
	if f.ImageInfo != nil {
		info := *f.ImageInfo
		c.ImageInfo = &info
	}
	if f.Data != nil {
		c.Data = append([]byte(nil), f.Data...)
	}
	return &c
}

// Metadata returns a copy without the raw byte buffer.
func (f *File) Metadata() *File {
	c := f.Clone()
	c.Data = nil
	return c
}

// Ext returns the lower-cased extension of the file name, including the dot.
func (f *File) Ext() string {
	return strings.ToLower(path.Ext(f.Name))
}

// Validate checks the descriptor is addressable.
func (f *File) Validate() error {
	if f.Name == "" {
		return errors.New("name is required")
	}
	if f.Size < 0 {
		return fmt.Errorf("negative size %d", f.Size)
	}
	if f.Sha256 != "" {
		if _, err := hex.DecodeString(f.Sha256); err != nil || len(f.Sha256) != sha256.Size*2 {
			return fmt.Errorf("malformed sha256 %q", f.Sha256)
		}
	}
	return nil
}

// HashBytes returns the lower-case hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BlobResourceName is the global download address of a blob.
func BlobResourceName(sha string, size int64) string {
	return fmt.Sprintf("/blobs/%s/%d", sha, size)
}

// UploadResourceName is the per-Input staging address used for uploads.
func UploadResourceName(inputID, sha string, size int64) string {
	return fmt.Sprintf("/uploads/%s/blobs/%s/%d", inputID, sha, size)
}

// ParseResourceName splits a download or upload resource name into its parts.
// inputID is empty for download names.
func ParseResourceName(name string) (inputID, sha string, size int64, err error) {
	parts := strings.Split(strings.TrimPrefix(name, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "blobs":
		sha = parts[1]
		_, err = fmt.Sscanf(parts[2], "%d", &size)
	case len(parts) == 5 && parts[0] == "uploads" && parts[2] == "blobs":
		inputID, sha = parts[1], parts[3]
		_, err = fmt.Sscanf(parts[4], "%d", &size)
	default:
		return "", "", 0, fmt.Errorf("malformed resource name %q", name)
	}
	if err != nil {
		return "", "", 0, fmt.Errorf("malformed size in resource name %q: %w", name, err)
	}
	if len(sha) != sha256.Size*2 || size < 0 {
		return "", "", 0, fmt.Errorf("malformed resource name %q", name)
	}
	return inputID, sha, size, nil
}

// ChangeType is the kind of a filesystem change notification.
type ChangeType int

const (
	ChangeChanged ChangeType = iota + 1
	ChangeCreated
	ChangeDeleted
)

func (t ChangeType) String() string {
	switch t {
	case ChangeChanged:
		return "changed"
	case ChangeCreated:
		return "created"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

func (t ChangeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ChangeEvent reports one changed URI.
type ChangeEvent struct {
	Type ChangeType `json:"type"`
	URI  string     `json:"uri"`
}

func (t *ChangeType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "changed":
		*t = ChangeChanged
	case "created":
		*t = ChangeCreated
	case "deleted":
		*t = ChangeDeleted
	default:
		return fmt.Errorf("unknown change type %q", text)
	}
	return nil
}
