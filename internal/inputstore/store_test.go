package inputstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/inputstore"
	"github.com/TheMichaelB/streamfs/internal/models"
)

type store interface {
	CreateInput(ctx context.Context, input *models.Input) (*models.Input, error)
	GetInput(ctx context.Context, filter models.InputFilter, mask *fieldmaskpb.FieldMask) (*models.Input, error)
	UpdateInput(ctx context.Context, input *models.Input, mask *fieldmaskpb.FieldMask) (*models.Input, error)
	RemoveInput(ctx context.Context, id string) error
	ListInputs(ctx context.Context, filter models.InputFilter) ([]*models.Input, error)
}

func stores(t *testing.T) map[string]store {
	sqlite, err := inputstore.NewSQLiteStore(
		filepath.Join(t.TempDir(), "inputs.db"),
		events.NewTestLogger(events.ErrorLevel, "text", nil),
	)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]store{
		"memory":   inputstore.NewMemoryStore(),
		"sqlite":   sqlite,
		"dynamodb": inputstore.NewDynamoDBStore(newFakeDynamo(), "inputs", events.NewTestLogger(events.ErrorLevel, "text", nil)),
	}
}

func mask(paths ...string) *fieldmaskpb.FieldMask {
	return &fieldmaskpb.FieldMask{Paths: paths}
}

func draft(login, title, body string) *models.Input {
	return &models.Input{
		Login:   login,
		Title:   title,
		Status:  models.StatusDraft,
		Type:    models.TypeText,
		Content: &models.Content{Markdown: body},
	}
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			created, err := s.CreateInput(ctx, draft("octocat", "Hello World", "# hi"))
			require.NoError(t, err)
			assert.NotEmpty(t, created.ID)
			assert.Equal(t, "hello-world", created.TitleSlug)
			assert.False(t, created.CreatedAt.IsZero())

			t.Run("get by id", func(t *testing.T) {
				got, err := s.GetInput(ctx, models.InputFilter{Login: "octocat", ID: created.ID}, nil)
				require.NoError(t, err)
				assert.Equal(t, "Hello World", got.Title)
				require.NotNil(t, got.Content)
				assert.Equal(t, "# hi", got.Content.Markdown)
			})

			t.Run("get by title with mask", func(t *testing.T) {
				got, err := s.GetInput(ctx, models.InputFilter{Login: "octocat", Title: "Hello World"}, mask(models.PathContent))
				require.NoError(t, err)
				assert.Equal(t, created.ID, got.ID)
				assert.Empty(t, got.Title)
				require.NotNil(t, got.Content)
				assert.Equal(t, "# hi", got.Content.Markdown)
			})

			t.Run("get wrong login", func(t *testing.T) {
				_, err := s.GetInput(ctx, models.InputFilter{Login: "hubot", ID: created.ID}, nil)
				assert.ErrorIs(t, err, models.ErrNotFound)
			})

			t.Run("update only masked fields", func(t *testing.T) {
				patch := &models.Input{
					ID:      created.ID,
					Title:   "ignored",
					Content: &models.Content{Markdown: "# edited"},
				}
				updated, err := s.UpdateInput(ctx, patch, mask(models.PathContent))
				require.NoError(t, err)
				assert.Equal(t, "Hello World", updated.Title)
				assert.Equal(t, "# edited", updated.Content.Markdown)
			})

			t.Run("update file set drops data", func(t *testing.T) {
				patch := &models.Input{
					ID: created.ID,
					FileSet: []*models.File{{
						Name:   "a.gif",
						Size:   3,
						Sha256: models.HashBytes([]byte("abc")),
						Data:   []byte("abc"),
					}},
				}
				updated, err := s.UpdateInput(ctx, patch, mask(models.PathFileSet))
				require.NoError(t, err)
				require.Len(t, updated.FileSet, 1)
				assert.Nil(t, updated.FileSet[0].Data)

				got, err := s.GetInput(ctx, models.InputFilter{ID: created.ID}, mask(models.PathFileSet))
				require.NoError(t, err)
				require.Len(t, got.FileSet, 1)
				assert.Equal(t, "a.gif", got.FileSet[0].Name)
				assert.Equal(t, int64(3), got.FileSet[0].Size)
			})

			t.Run("update title reslugs", func(t *testing.T) {
				updated, err := s.UpdateInput(ctx, &models.Input{ID: created.ID, Title: "Renamed"}, mask(models.PathTitle))
				require.NoError(t, err)
				assert.Equal(t, "renamed", updated.TitleSlug)
			})

			t.Run("unknown mask path", func(t *testing.T) {
				_, err := s.UpdateInput(ctx, &models.Input{ID: created.ID}, mask("bogus"))
				assert.ErrorIs(t, err, models.ErrInvalidArgument)
			})

			t.Run("empty mask", func(t *testing.T) {
				_, err := s.UpdateInput(ctx, &models.Input{ID: created.ID}, nil)
				assert.ErrorIs(t, err, models.ErrInvalidArgument)
			})

			t.Run("remove", func(t *testing.T) {
				require.NoError(t, s.RemoveInput(ctx, created.ID))
				assert.ErrorIs(t, s.RemoveInput(ctx, created.ID), models.ErrNotFound)
				_, err := s.GetInput(ctx, models.InputFilter{ID: created.ID}, nil)
				assert.ErrorIs(t, err, models.ErrNotFound)
			})
		})
	}
}

func TestStoreListAndConflicts(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, title := range []string{"One", "Two", "Three"} {
				_, err := s.CreateInput(ctx, draft("octocat", title, ""))
				require.NoError(t, err)
			}
			_, err := s.CreateInput(ctx, draft("hubot", "One", ""))
			require.NoError(t, err)

			list, err := s.ListInputs(ctx, models.InputFilter{Login: "octocat"})
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "One", list[0].Title)
			assert.Equal(t, "Three", list[2].Title)

			_, err = s.CreateInput(ctx, draft("octocat", "Two", ""))
			assert.ErrorIs(t, err, models.ErrAlreadyExists)

			_, err = s.UpdateInput(ctx, &models.Input{ID: list[0].ID, Title: "Two"}, mask(models.PathTitle))
			assert.ErrorIs(t, err, models.ErrAlreadyExists)

			_, err = s.CreateInput(ctx, draft("octocat", "a/b", ""))
			assert.ErrorIs(t, err, models.ErrInvalidArgument)

			_, err = s.CreateInput(ctx, draft("octocat", "", ""))
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
		})
	}
}

func TestProject(t *testing.T) {
	in := draft("octocat", "Hello", "body")
	in.ID = "in-1"

	full, err := inputstore.Project(in, nil)
	require.NoError(t, err)
	assert.Equal(t, in, full)

	status, err := inputstore.Project(in, mask(models.PathStatus))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, status.Status)
	assert.Nil(t, status.Content)
	assert.Equal(t, "in-1", status.ID)

	_, err = inputstore.Project(in, mask("nope"))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestMemoryStoreSeed(t *testing.T) {
	s := inputstore.NewMemoryStore()
	s.Seed(&models.Input{ID: "fixed", Login: "octocat", Title: "Seeded"})

	got, err := s.GetInput(context.Background(), models.InputFilter{Login: "octocat", Title: "Seeded"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed", got.ID)
	assert.Equal(t, "seeded", got.TitleSlug)
}
