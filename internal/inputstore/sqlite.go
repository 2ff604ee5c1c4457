package inputstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
)

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

// SQLiteStore keeps Inputs in a SQLite database. The file set is stored as
// a JSON column since it is always read and written whole.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger

	// Now is the clock used for timestamps.
	Now func() time.Time
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_input_store"),
		Now:    time.Now,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS inputs (
        id TEXT PRIMARY KEY,
        login TEXT NOT NULL,
        title TEXT NOT NULL,
        title_slug TEXT NOT NULL,
        status INTEGER NOT NULL DEFAULT 0,
        type INTEGER NOT NULL DEFAULT 0,
        content TEXT,
        file_set TEXT NOT NULL DEFAULT '[]',
        created_at INTEGER NOT NULL,
        updated_at INTEGER NOT NULL,
        UNIQUE (login, title)
    );

    CREATE INDEX IF NOT EXISTS idx_inputs_login ON inputs(login, created_at);

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const selectColumns = `id, login, title, title_slug, status, type, content, file_set, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInput(row rowScanner) (*models.Input, error) {
	var (
		in        models.Input
		content   sql.NullString
		fileSet   string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&in.ID, &in.Login, &in.Title, &in.TitleSlug, &in.Status, &in.Type,
		&content, &fileSet, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if content.Valid {
		in.Content = &models.Content{Markdown: content.String}
	}
	if err := json.Unmarshal([]byte(fileSet), &in.FileSet); err != nil {
		return nil, fmt.Errorf("decode file set of %s: %w", in.ID, err)
	}
	in.CreatedAt = time.UnixMilli(createdAt).UTC()
	in.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &in, nil
}

func encodeRow(in *models.Input) (content sql.NullString, fileSet string, err error) {
	if in.Content != nil {
		content = sql.NullString{String: in.Content.Markdown, Valid: true}
	}
	files := fileMetadata(in.FileSet)
	if files == nil {
		files = []*models.File{}
	}
	data, err := json.Marshal(files)
	if err != nil {
		return content, "", fmt.Errorf("encode file set: %w", err)
	}
	return content, string(data), nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// CreateInput stores a new Input with a generated ID.
func (s *SQLiteStore) CreateInput(ctx context.Context, input *models.Input) (*models.Input, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	c := input.Clone()
	c.ID = uuid.NewString()
	c.TitleSlug = models.Slugify(c.Title)
	now := s.Now().UTC().Truncate(time.Millisecond)
	c.CreatedAt, c.UpdatedAt = now, now
	c.FileSet = fileMetadata(c.FileSet)

	content, fileSet, err := encodeRow(c)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO inputs (`+selectColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, c.ID, c.Login, c.Title, c.TitleSlug, c.Status, c.Type, content, fileSet,
		now.UnixMilli(), now.UnixMilli())
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("input %q for %s: %w", c.Title, c.Login, models.ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert input: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"input_id": c.ID,
		"login":    c.Login,
	}).Debug("Created input")

	return c, nil
}

// GetInput returns the Input matching filter, projected by mask.
func (s *SQLiteStore) GetInput(ctx context.Context, filter models.InputFilter, mask *fieldmaskpb.FieldMask) (*models.Input, error) {
	var row *sql.Row
	switch {
	case filter.ID != "":
		row = s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM inputs WHERE id = ?`, filter.ID)
	case filter.Title != "":
		row = s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM inputs WHERE login = ? AND title = ?`,
			filter.Login, filter.Title)
	default:
		return nil, fmt.Errorf("filter needs an id or a title: %w", models.ErrInvalidArgument)
	}

	in, err := scanInput(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(filter)
	}
	if err != nil {
		return nil, fmt.Errorf("query input: %w", err)
	}
	if !matches(in, filter) {
		return nil, notFound(filter)
	}
	return Project(in, mask)
}

// UpdateInput writes the fields named by mask.
func (s *SQLiteStore) UpdateInput(ctx context.Context, input *models.Input, mask *fieldmaskpb.FieldMask) (*models.Input, error) {
	if len(mask.GetPaths()) == 0 {
		return nil, fmt.Errorf("update needs a field mask: %w", models.ErrInvalidArgument)
	}
	if err := validateMask(mask); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored, err := scanInput(tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM inputs WHERE id = ?`, input.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(models.InputFilter{ID: input.ID})
	}
	if err != nil {
		return nil, fmt.Errorf("query input: %w", err)
	}

	if err := ApplyMask(stored, input, mask); err != nil {
		return nil, err
	}
	if err := validateInput(stored); err != nil {
		return nil, err
	}
	stored.UpdatedAt = s.Now().UTC().Truncate(time.Millisecond)

	content, fileSet, err := encodeRow(stored)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE inputs
        SET title = ?, title_slug = ?, status = ?, content = ?, file_set = ?, updated_at = ?
        WHERE id = ?
    `, stored.Title, stored.TitleSlug, stored.Status, content, fileSet, stored.UpdatedAt.UnixMilli(), stored.ID)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("input %q for %s: %w", stored.Title, stored.Login, models.ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("update input: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"input_id": stored.ID,
		"paths":    mask.GetPaths(),
	}).Debug("Updated input")

	return stored, nil
}

// RemoveInput deletes an Input.
func (s *SQLiteStore) RemoveInput(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inputs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete input: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete input: %w", err)
	}
	if n == 0 {
		return notFound(models.InputFilter{ID: id})
	}
	return nil
}

// ListInputs returns the Inputs of filter.Login in creation order.
func (s *SQLiteStore) ListInputs(ctx context.Context, filter models.InputFilter) ([]*models.Input, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+selectColumns+`
        FROM inputs
        WHERE login = ?
        ORDER BY created_at, rowid
    `, filter.Login)
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer rows.Close()

	var out []*models.Input
	for rows.Next() {
		in, err := scanInput(rows)
		if err != nil {
			return nil, fmt.Errorf("scan input row: %w", err)
		}
		if matches(in, filter) {
			out = append(out, in)
		}
	}

	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
