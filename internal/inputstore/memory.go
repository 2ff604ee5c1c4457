package inputstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/TheMichaelB/streamfs/internal/models"
)

// MemoryStore keeps Inputs in memory, in creation order.
type MemoryStore struct {
	mu     sync.RWMutex
	inputs map[string]*models.Input
	order  []string

	// Now is the clock used for timestamps.
	Now func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inputs: make(map[string]*models.Input),
		Now:    time.Now,
	}
}

// Seed inserts inputs as-is, keeping their IDs and timestamps. Missing IDs
// are generated.
func (s *MemoryStore) Seed(inputs ...*models.Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range inputs {
		c := in.Clone()
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.TitleSlug == "" {
			c.TitleSlug = models.Slugify(c.Title)
		}
		c.FileSet = fileMetadata(c.FileSet)
		if _, exists := s.inputs[c.ID]; !exists {
			s.order = append(s.order, c.ID)
		}
		s.inputs[c.ID] = c
	}
}

// CreateInput stores a new Input with a generated ID.
func (s *MemoryStore) CreateInput(ctx context.Context, input *models.Input) (*models.Input, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.titleTaken(input.Login, input.Title, "") {
		return nil, fmt.Errorf("input %q for %s: %w", input.Title, input.Login, models.ErrAlreadyExists)
	}

	c := input.Clone()
	c.ID = uuid.NewString()
	c.TitleSlug = models.Slugify(c.Title)
	c.FileSet = fileMetadata(c.FileSet)
	now := s.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	s.inputs[c.ID] = c
	s.order = append(s.order, c.ID)

	return c.Clone(), nil
}

// GetInput returns the Input matching filter, projected by mask.
func (s *MemoryStore) GetInput(ctx context.Context, filter models.InputFilter, mask *fieldmaskpb.FieldMask) (*models.Input, error) {
	if filter.ID == "" && filter.Title == "" {
		return nil, fmt.Errorf("filter needs an id or a title: %w", models.ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if in := s.inputs[id]; matches(in, filter) {
			return Project(in, mask)
		}
	}
	return nil, notFound(filter)
}

// UpdateInput writes the fields named by mask.
func (s *MemoryStore) UpdateInput(ctx context.Context, input *models.Input, mask *fieldmaskpb.FieldMask) (*models.Input, error) {
	if len(mask.GetPaths()) == 0 {
		return nil, fmt.Errorf("update needs a field mask: %w", models.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.inputs[input.ID]
	if !ok {
		return nil, notFound(models.InputFilter{ID: input.ID})
	}

	updated := stored.Clone()
	if err := ApplyMask(updated, input, mask); err != nil {
		return nil, err
	}
	if err := validateInput(updated); err != nil {
		return nil, err
	}
	if updated.Title != stored.Title && s.titleTaken(updated.Login, updated.Title, updated.ID) {
		return nil, fmt.Errorf("input %q for %s: %w", updated.Title, updated.Login, models.ErrAlreadyExists)
	}
	updated.UpdatedAt = s.Now().UTC()

	s.inputs[updated.ID] = updated
	return updated.Clone(), nil
}

// RemoveInput deletes an Input.
func (s *MemoryStore) RemoveInput(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inputs[id]; !ok {
		return notFound(models.InputFilter{ID: id})
	}
	delete(s.inputs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListInputs returns every Input matching filter in creation order.
func (s *MemoryStore) ListInputs(ctx context.Context, filter models.InputFilter) ([]*models.Input, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Input
	for _, id := range s.order {
		if in := s.inputs[id]; matches(in, filter) {
			out = append(out, in.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) titleTaken(login, title, exceptID string) bool {
	for id, in := range s.inputs {
		if id != exceptID && in.Login == login && in.Title == title {
			return true
		}
	}
	return false
}
