package hostapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/TheMichaelB/streamfs/internal/hostapi"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/streamfs"
	"github.com/TheMichaelB/streamfs/internal/transport"
	"github.com/TheMichaelB/streamfs/test/testutil"
)

type fixture struct {
	fs      *streamfs.FS
	handler *hostapi.Handler
	srv     *httptest.Server
	backend *testutil.Backend
}

func newFixture(t *testing.T, inputs ...*models.Input) *fixture {
	t.Helper()
	backend := testutil.NewBackend(t, inputs...)
	fs := streamfs.New(streamfs.Options{
		Inputs: backend.Inputs,
		Blobs:  backend.Blobs,
		Logger: testutil.NewTestLogger(),
		Now:    testutil.FixedClock(testutil.Epoch),
	})
	fs.AddUser(testutil.Login)
	fs.Flush()

	h := hostapi.NewHandler(fs, testutil.NewTestLogger())
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Hub().Close()
		srv.Close()
		fs.Close()
	})
	return &fixture{fs: fs, handler: h, srv: srv, backend: backend}
}

func (f *fixture) do(t *testing.T, method, route string, query url.Values, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+route+"?"+query.Encode(), bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func uri(u string) url.Values {
	return url.Values{"uri": {u}}
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestReadEndpoints(t *testing.T) {
	f := newFixture(t, testutil.DraftInput("in-1", "Hello", "# hi"))

	resp := f.do(t, http.MethodGet, hostapi.RouteDirectory, uri("/octocat"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []hostapi.Entry
	decode(t, resp, &entries)
	assert.Equal(t, []hostapi.Entry{{Name: "Hello", Type: "directory"}}, entries)

	resp = f.do(t, http.MethodGet, hostapi.RouteFile, uri("/octocat/Hello/hello.draft.md"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(body))

	resp = f.do(t, http.MethodGet, hostapi.RouteStat, uri("/octocat/Hello/hello.draft.md"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st hostapi.Stat
	decode(t, resp, &st)
	assert.Equal(t, "file", st.Type)
	assert.Equal(t, "content_file", st.Kind)
	assert.Equal(t, int64(4), st.Size)
	assert.Equal(t, testutil.Epoch.UnixMilli(), st.Mtime)
}

func TestWriteAndMutate(t *testing.T) {
	f := newFixture(t, testutil.DraftInput("in-1", "Hello", "# hi"))

	q := uri("/octocat/Hello/dot.gif")
	q.Set("create", "true")
	resp := f.do(t, http.MethodPut, hostapi.RouteFile, q, testutil.GIF14)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, f.backend.Remote(t, "in-1").FileSet, 1)

	resp = f.do(t, http.MethodPut, hostapi.RouteFile, q, testutil.GIF14)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodPost, hostapi.RouteRename, url.Values{
		"from": {"/octocat/Hello/dot.gif"},
		"to":   {"/octocat/Hello/pixel.gif"},
	}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "pixel.gif", f.backend.Remote(t, "in-1").FileSet[0].Name)

	resp = f.do(t, http.MethodDelete, hostapi.RouteEntry, uri("/octocat/Hello/pixel.gif"), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, f.backend.Remote(t, "in-1").FileSet)

	resp = f.do(t, http.MethodPost, hostapi.RouteDirectory, uri("/octocat/Second"), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, err := f.backend.Store.GetInput(context.Background(), models.InputFilter{Login: testutil.Login, Title: "Second"}, nil)
	assert.NoError(t, err)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t, testutil.PublishedInput("in-1", "Hello", "# hi"))

	tests := []struct {
		name   string
		method string
		route  string
		query  url.Values
		body   []byte
		status int
		code   string
	}{
		{"missing", http.MethodGet, hostapi.RouteStat, uri("/octocat/Nope"), nil, http.StatusNotFound, "FileNotFound"},
		{"read dir as file", http.MethodGet, hostapi.RouteFile, uri("/octocat/Hello"), nil, http.StatusBadRequest, "FileIsADirectory"},
		{"list file", http.MethodGet, hostapi.RouteDirectory, uri("/octocat/Hello/hello.published.md"), nil, http.StatusBadRequest, "FileNotADirectory"},
		{"published", http.MethodPut, hostapi.RouteFile, uri("/octocat/Hello/hello.published.md"), []byte("x"), http.StatusForbidden, "NoPermissions"},
		{"root delete", http.MethodDelete, hostapi.RouteEntry, uri("/"), nil, http.StatusForbidden, "NoPermissions"},
		{"copy elsewhere", http.MethodPost, hostapi.RouteCopy, url.Values{"source": {"/octocat/Hello/hello.published.md"}, "target": {"https://example.com/x"}}, nil, http.StatusForbidden, "NoPermissions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, tt.method, tt.route, tt.query, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

			var apiErr hostapi.Error
			decode(t, resp, &apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.NotEmpty(t, apiErr.RequestID)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{models.Unavailable(errors.New("down"), "list"), http.StatusServiceUnavailable},
		{models.ErrCancelled, http.StatusRequestTimeout},
		{fmt.Errorf("wrapped: %w", context.Canceled), http.StatusRequestTimeout},
		{&models.TransferError{Op: "read", Code: codes.Unavailable}, http.StatusBadGateway},
		{&models.IntegrityError{Path: "/blobs/x/1"}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := hostapi.StatusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

func TestWatchFeed(t *testing.T) {
	f := newFixture(t, testutil.DraftInput("in-1", "Hello", "# hi"))

	watch := transport.NewWatchClient(f.srv.URL+hostapi.RouteWatch, "", testutil.NewTestLogger())
	require.NoError(t, watch.Connect(context.Background()))
	defer watch.Close()

	require.Eventually(t, func() bool { return f.handler.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	q := uri("/octocat/Hello/hello.draft.md")
	q.Set("create", "true")
	q.Set("overwrite", "true")
	resp := f.do(t, http.MethodPut, hostapi.RouteFile, q, []byte("# changed"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	f.fs.Flush()

	select {
	case batch := <-watch.Batches():
		assert.Equal(t, []models.ChangeEvent{{Type: models.ChangeChanged, URI: "/octocat/Hello/hello.draft.md"}}, batch)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change batch")
	}

	f.handler.Hub().Close()
	select {
	case _, ok := <-watch.Batches():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("feed was not closed")
	}
}

func TestServeUntilCancelled(t *testing.T) {
	f := newFixture(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.handler.Serve(ctx, lis) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + lis.Addr().String() + hostapi.RouteDirectory + "?uri=/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
