// Package hostapi exposes a streamfs filesystem to editor hosts over
// HTTP/JSON and streams its change events over a websocket.
package hostapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/streamfs"
)

// Routes of the provider API. Every route takes the target in the uri
// query parameter; rename takes from/to and copy takes source/target.
const (
	RouteStat      = "/fs/stat"
	RouteDirectory = "/fs/directory"
	RouteFile      = "/fs/file"
	RouteEntry     = "/fs/entry"
	RouteRename    = "/fs/rename"
	RouteCopy      = "/fs/copy"
	RouteWatch     = "/fs/watch"
)

const maxFileBody = streamfs.DefaultMaxBodySize + 1

// Stat is the JSON form of streamfs.FileStat. Times are milliseconds since
// the epoch.
type Stat struct {
	Type  string `json:"type"`
	Kind  string `json:"kind"`
	Ctime int64  `json:"ctime"`
	Mtime int64  `json:"mtime"`
	Size  int64  `json:"size"`
}

// Entry is one directory entry.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Error is the body of a failed request.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Handler serves the provider API for one filesystem.
type Handler struct {
	fs     *streamfs.FS
	hub    *Hub
	logger *events.Logger
	mux    *http.ServeMux
}

// NewHandler routes the provider API to fs.
func NewHandler(fs *streamfs.FS, logger *events.Logger) *Handler {
	logger = logger.WithField("component", "hostapi")
	h := &Handler{
		fs:     fs,
		hub:    NewHub(fs, logger),
		logger: logger,
		mux:    http.NewServeMux(),
	}
	h.mux.HandleFunc("GET "+RouteStat, h.stat)
	h.mux.HandleFunc("GET "+RouteDirectory, h.readDirectory)
	h.mux.HandleFunc("POST "+RouteDirectory, h.createDirectory)
	h.mux.HandleFunc("GET "+RouteFile, h.readFile)
	h.mux.HandleFunc("PUT "+RouteFile, h.writeFile)
	h.mux.HandleFunc("DELETE "+RouteEntry, h.delete)
	h.mux.HandleFunc("POST "+RouteRename, h.rename)
	h.mux.HandleFunc("POST "+RouteCopy, h.copy)
	h.mux.Handle("GET "+RouteWatch, h.hub)
	return h
}

// Hub returns the change feed.
func (h *Handler) Hub() *Hub {
	return h.hub
}

// ServeHTTP tags the request with an ID and dispatches it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)
	ctx := events.WithRequestID(r.Context(), requestID)
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// Serve runs the API on lis until ctx is cancelled.
func (h *Handler) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.logger.WithField("addr", lis.Addr().String()).Info("Host API listening")
		if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		h.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (h *Handler) stat(w http.ResponseWriter, r *http.Request) {
	st, err := h.fs.Stat(r.Context(), r.URL.Query().Get("uri"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, Stat{
		Type:  st.Type.String(),
		Kind:  st.Kind.String(),
		Ctime: st.Ctime.UnixMilli(),
		Mtime: st.Mtime.UnixMilli(),
		Size:  st.Size,
	})
}

func (h *Handler) readDirectory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.fs.ReadDirectory(r.Context(), r.URL.Query().Get("uri"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, Entry{Name: e.Name, Type: e.Type.String()})
	}
	h.reply(w, out)
}

func (h *Handler) createDirectory(w http.ResponseWriter, r *http.Request) {
	if err := h.fs.CreateDirectory(r.Context(), r.URL.Query().Get("uri")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) readFile(w http.ResponseWriter, r *http.Request) {
	data, err := h.fs.ReadFile(r.Context(), r.URL.Query().Get("uri"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (h *Handler) writeFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxFileBody))
	if err != nil {
		h.fail(w, r, fmt.Errorf("read body: %w", err))
		return
	}
	opts := streamfs.WriteOptions{
		Create:    flag(q.Get("create")),
		Overwrite: flag(q.Get("overwrite")),
	}
	if err := h.fs.WriteFile(r.Context(), q.Get("uri"), data, opts); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.fs.Delete(r.Context(), r.URL.Query().Get("uri")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := h.fs.Rename(r.Context(), q.Get("from"), q.Get("to"), flag(q.Get("overwrite"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) copy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := h.fs.Copy(r.Context(), q.Get("source"), q.Get("target")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func flag(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func (h *Handler) reply(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Warn("Failed to write response")
	}
}

// StatusFor maps a filesystem error onto an HTTP status and error code.
func StatusFor(err error) (int, string) {
	var (
		fsErr       *models.FSError
		transferErr *models.TransferError
		integrity   *models.IntegrityError
	)
	switch {
	case errors.Is(err, models.ErrCancelled), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "Cancelled"
	case errors.As(err, &fsErr):
		switch fsErr.Code {
		case models.CodeFileNotFound:
			return http.StatusNotFound, string(fsErr.Code)
		case models.CodeFileExists:
			return http.StatusConflict, string(fsErr.Code)
		case models.CodeFileNotADirectory, models.CodeFileIsADirectory:
			return http.StatusBadRequest, string(fsErr.Code)
		case models.CodeNoPermissions:
			return http.StatusForbidden, string(fsErr.Code)
		case models.CodeUnavailable:
			return http.StatusServiceUnavailable, string(fsErr.Code)
		}
	case errors.As(err, &transferErr), errors.As(err, &integrity):
		return http.StatusBadGateway, "TransferFailed"
	}
	return http.StatusInternalServerError, "Internal"
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, name := StatusFor(err)

	logger := h.logger.WithError(err).WithField("path", r.URL.Path)
	if code >= http.StatusInternalServerError {
		logger.Error("Request failed")
	} else {
		logger.Debug("Request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(Error{
		Code:      name,
		Message:   err.Error(),
		RequestID: events.GetRequestID(r.Context()),
	}); err != nil {
		h.logger.WithError(err).Warn("Failed to write error response")
	}
}
