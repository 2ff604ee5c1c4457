// Package inputstore holds Input metadata backends. Both stores satisfy the
// Inputs client contract directly so they can sit behind the development
// HTTP API or be used in-process.
package inputstore

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/TheMichaelB/streamfs/internal/models"
)

// ApplyMask copies the fields named by mask from src into dst. An unknown
// path fails with models.ErrInvalidArgument and leaves dst untouched.
func ApplyMask(dst, src *models.Input, mask *fieldmaskpb.FieldMask) error {
	if err := validateMask(mask); err != nil {
		return err
	}
	for _, path := range mask.GetPaths() {
		switch path {
		case models.PathContent:
			dst.Content = nil
			if src.Content != nil {
				content := *src.Content
				dst.Content = &content
			}
		case models.PathStatus:
			dst.Status = src.Status
		case models.PathTitle:
			dst.Title = src.Title
			dst.TitleSlug = models.Slugify(src.Title)
		case models.PathFileSet:
			dst.FileSet = fileMetadata(src.FileSet)
		}
	}
	return nil
}

// Project returns the identity fields of in plus the fields named by mask.
// An empty mask selects every field.
func Project(in *models.Input, mask *fieldmaskpb.FieldMask) (*models.Input, error) {
	if len(mask.GetPaths()) == 0 {
		return in.Clone(), nil
	}
	out := &models.Input{
		ID:        in.ID,
		Login:     in.Login,
		Type:      in.Type,
		CreatedAt: in.CreatedAt,
		UpdatedAt: in.UpdatedAt,
	}
	if err := ApplyMask(out, in, mask); err != nil {
		return nil, err
	}
	return out, nil
}

func validateMask(mask *fieldmaskpb.FieldMask) error {
	for _, path := range mask.GetPaths() {
		switch path {
		case models.PathContent, models.PathStatus, models.PathTitle, models.PathFileSet:
		default:
			return fmt.Errorf("unknown field mask path %q: %w", path, models.ErrInvalidArgument)
		}
	}
	return nil
}

func validateInput(in *models.Input) error {
	if err := in.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, models.ErrInvalidArgument)
	}
	if strings.Contains(in.Title, "/") {
		return fmt.Errorf("title %q contains '/': %w", in.Title, models.ErrInvalidArgument)
	}
	return nil
}

func fileMetadata(files []*models.File) []*models.File {
	if files == nil {
		return nil
	}
	out := make([]*models.File, len(files))
	for i, f := range files {
		out[i] = f.Metadata()
	}
	return out
}

func matches(in *models.Input, filter models.InputFilter) bool {
	if filter.Login != "" && in.Login != filter.Login {
		return false
	}
	if filter.ID != "" && in.ID != filter.ID {
		return false
	}
	if filter.Title != "" && in.Title != filter.Title {
		return false
	}
	return true
}

func notFound(filter models.InputFilter) error {
	return fmt.Errorf("input %s: %w", filter, models.ErrNotFound)
}
