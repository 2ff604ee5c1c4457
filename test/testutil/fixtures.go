package testutil

import (
	"bytes"
	"math/rand"
	"time"

	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
)

// Login is the account used by fixtures.
const Login = "octocat"

// EmptySHA256 is the hash of a zero-length buffer.
const EmptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// GIF14 is a 1x1 GIF: header, screen descriptor and trailer.
var GIF14 = []byte{
	'G', 'I', 'F', '8', '9', 'a',
	0x01, 0x00, 0x01, 0x00,
	0x00, 0x00, 0x00,
	0x3B,
}

// Epoch is the fixed clock of fixtures.
var Epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// CaptureLogger returns a JSON logger writing into the returned buffer.
func CaptureLogger() (*events.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return events.NewTestLogger(events.DebugLevel, "json", buf), buf
}

// DraftInput builds a draft Input of Login.
func DraftInput(id, title, markdown string) *models.Input {
	return &models.Input{
		ID:        id,
		Login:     Login,
		Title:     title,
		TitleSlug: models.Slugify(title),
		Status:    models.StatusDraft,
		Type:      models.TypeText,
		Content:   &models.Content{Markdown: markdown},
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
}

// PublishedInput builds a published Input of Login.
func PublishedInput(id, title, markdown string) *models.Input {
	in := DraftInput(id, title, markdown)
	in.Status = models.StatusPublished
	return in
}

// RandomBytes returns n deterministic pseudo-random bytes.
func RandomBytes(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	buf := make([]byte, n)
	r.Read(buf)
	return buf
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
