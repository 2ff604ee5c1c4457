package streamfs

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/TheMichaelB/streamfs/internal/models"
)

// imageSniffer decodes image dimensions from a growing upload prefix. It
// succeeds at most once and gives up as soon as the leading bytes match no
// registered format.
type imageSniffer struct {
	done bool
}

func newImageSniffer() *imageSniffer {
	return &imageSniffer{}
}

func (s *imageSniffer) sniff(prefix []byte) (*models.ImageInfo, string, bool) {
	if s.done || len(prefix) == 0 {
		return nil, "", false
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(prefix))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			s.done = true
		}
		return nil, "", false
	}

	s.done = true
	return &models.ImageInfo{
		Width:  int32(cfg.Width),
		Height: int32(cfg.Height),
	}, models.ContentTypeForFormat(format), true
}
