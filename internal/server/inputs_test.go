package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/streamfs/internal/config"
	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/inputstore"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/server"
	"github.com/TheMichaelB/streamfs/internal/transport"
	"github.com/TheMichaelB/streamfs/test/testutil"
)

func newAPI(t *testing.T) (*httptest.Server, *transport.HTTPInputsClient) {
	t.Helper()
	store := inputstore.NewMemoryStore()
	srv := httptest.NewServer(server.NewInputsHandler(store, testutil.NewTestLogger()))
	t.Cleanup(srv.Close)

	client := transport.NewHTTPClient(&config.APIConfig{
		BaseURL:   srv.URL,
		Timeout:   5 * time.Second,
		UserAgent: "streamfs-test",
	}, testutil.NewTestLogger())
	return srv, transport.NewHTTPInputsClient(client)
}

func TestInputsAPILifecycle(t *testing.T) {
	ctx := context.Background()
	_, api := newAPI(t)

	created, err := api.CreateInput(ctx, &models.Input{
		Login:   testutil.Login,
		Title:   "Hello World",
		Status:  models.StatusDraft,
		Type:    models.TypeText,
		Content: &models.Content{Markdown: "# hi"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "hello-world", created.TitleSlug)

	got, err := api.GetInput(ctx, models.InputFilter{Login: testutil.Login, Title: "Hello World"}, nil)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "# hi", got.Content.Markdown)

	projected, err := api.GetInput(ctx, models.InputFilter{Login: testutil.Login, ID: created.ID}, transport.Mask(models.PathTitle))
	require.NoError(t, err)
	assert.Equal(t, "Hello World", projected.Title)
	assert.Nil(t, projected.Content)

	updated, err := api.UpdateInput(ctx, &models.Input{ID: created.ID, Login: testutil.Login, Title: "Renamed"}, transport.Mask(models.PathTitle))
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "# hi", updated.Content.Markdown)

	list, err := api.ListInputs(ctx, models.InputFilter{Login: testutil.Login})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Renamed", list[0].Title)

	require.NoError(t, api.RemoveInput(ctx, created.ID))
	_, err = api.GetInput(ctx, models.InputFilter{Login: testutil.Login, ID: created.ID}, nil)
	assert.ErrorIs(t, err, models.ErrNotFound)

	list, err = api.ListInputs(ctx, models.InputFilter{Login: testutil.Login})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInputsAPIErrors(t *testing.T) {
	ctx := context.Background()
	_, api := newAPI(t)

	in := &models.Input{Login: testutil.Login, Title: "Taken", Status: models.StatusDraft}
	_, err := api.CreateInput(ctx, in)
	require.NoError(t, err)

	_, err = api.CreateInput(ctx, in)
	assert.ErrorIs(t, err, models.ErrAlreadyExists)

	_, err = api.GetInput(ctx, models.InputFilter{Login: testutil.Login}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = api.CreateInput(ctx, &models.Input{Login: testutil.Login})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	err = api.RemoveInput(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = api.UpdateInput(ctx, &models.Input{ID: "missing"}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestInputsAPIRejectsMalformedBody(t *testing.T) {
	srv, _ := newAPI(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+transport.RouteCreateInput, strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))

	var apiErr models.APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, "invalid_argument", apiErr.Code)
	assert.Equal(t, "req-42", apiErr.RequestID)
}

func TestInputsAPIMethodNotAllowed(t *testing.T) {
	srv, _ := newAPI(t)

	resp, err := http.Get(srv.URL + transport.RouteListInputs)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestInputsAPILogsRequestScope(t *testing.T) {
	var logs bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &logs)
	srv := httptest.NewServer(server.NewInputsHandler(inputstore.NewMemoryStore(), logger))
	t.Cleanup(srv.Close)

	body := `{"input":{"id":"nope","login":"octocat","title":"X"},"field_mask":["title"]}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+transport.RouteUpdateInput, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-7")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &entry))
	assert.Equal(t, "Request rejected", entry["msg"])
	assert.Equal(t, "req-7", entry["request_id"])
	assert.Equal(t, "octocat", entry["login"])
	assert.Equal(t, "nope", entry["input_id"])
}
