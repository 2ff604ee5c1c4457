package streamfs

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/streamfs/test/testutil"
)

func TestSniffGIF(t *testing.T) {
	s := newImageSniffer()
	info, contentType, ok := s.sniff(testutil.GIF14)
	require.True(t, ok)
	assert.Equal(t, int32(1), info.Width)
	assert.Equal(t, int32(1), info.Height)
	assert.Equal(t, "image/gif", contentType)

	_, _, ok = s.sniff(testutil.GIF14)
	assert.False(t, ok, "only the first success counts")
}

func TestSniffGrowingPrefix(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2))))
	data := buf.Bytes()

	s := newImageSniffer()
	_, _, ok := s.sniff(data[:10])
	assert.False(t, ok, "header is incomplete")

	info, contentType, ok := s.sniff(data)
	require.True(t, ok)
	assert.Equal(t, int32(3), info.Width)
	assert.Equal(t, int32(2), info.Height)
	assert.Equal(t, "image/png", contentType)
}

func TestSniffGivesUpOnUnknownFormat(t *testing.T) {
	s := newImageSniffer()
	_, _, ok := s.sniff([]byte("plain text, not an image"))
	assert.False(t, ok)
	assert.True(t, s.done)

	_, _, ok = s.sniff(testutil.GIF14)
	assert.False(t, ok)
}

func TestSniffEmptyPrefix(t *testing.T) {
	s := newImageSniffer()
	_, _, ok := s.sniff(nil)
	assert.False(t, ok)
	assert.False(t, s.done)
}
