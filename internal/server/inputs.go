package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/transport"
)

const maxRequestBody = 1 << 20

// InputsHandler serves the Inputs HTTP/JSON API from an Input store.
type InputsHandler struct {
	store  transport.InputsClient
	logger *events.Logger
	mux    *http.ServeMux
}

// NewInputsHandler routes the Inputs API to store.
func NewInputsHandler(store transport.InputsClient, logger *events.Logger) *InputsHandler {
	h := &InputsHandler{
		store:  store,
		logger: logger.WithField("component", "inputs_api"),
		mux:    http.NewServeMux(),
	}
	h.mux.HandleFunc("POST "+transport.RouteCreateInput, h.create)
	h.mux.HandleFunc("POST "+transport.RouteGetInput, h.get)
	h.mux.HandleFunc("POST "+transport.RouteUpdateInput, h.update)
	h.mux.HandleFunc("POST "+transport.RouteRemoveInput, h.remove)
	h.mux.HandleFunc("POST "+transport.RouteListInputs, h.list)
	return h
}

// ServeHTTP tags the request with an ID and dispatches it.
func (h *InputsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)
	ctx := events.WithRequestID(r.Context(), requestID)
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (h *InputsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req transport.CreateInputRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Input == nil {
		h.fail(w, r, fmt.Errorf("input is required: %w", models.ErrInvalidArgument))
		return
	}
	r = scoped(r, req.Input.Login, "")
	in, err := h.store.CreateInput(r.Context(), req.Input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.WithFields(map[string]interface{}{
		"input_id": in.ID,
		"login":    in.Login,
	}).Info("Created input")
	h.reply(w, transport.InputResponse{Input: in})
}

func (h *InputsHandler) get(w http.ResponseWriter, r *http.Request) {
	var req transport.GetInputRequest
	if !h.decode(w, r, &req) {
		return
	}
	var mask *fieldmaskpb.FieldMask
	if len(req.FieldMask) > 0 {
		mask = transport.Mask(req.FieldMask...)
	}
	r = scoped(r, req.Filter.Login, req.Filter.ID)
	in, err := h.store.GetInput(r.Context(), req.Filter, mask)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, transport.InputResponse{Input: in})
}

func (h *InputsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req transport.UpdateInputRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Input == nil {
		h.fail(w, r, fmt.Errorf("input is required: %w", models.ErrInvalidArgument))
		return
	}
	r = scoped(r, req.Input.Login, req.Input.ID)
	in, err := h.store.UpdateInput(r.Context(), req.Input, transport.Mask(req.FieldMask...))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, transport.InputResponse{Input: in})
}

func (h *InputsHandler) remove(w http.ResponseWriter, r *http.Request) {
	var req transport.RemoveInputRequest
	if !h.decode(w, r, &req) {
		return
	}
	r = scoped(r, "", req.ID)
	if err := h.store.RemoveInput(r.Context(), req.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, struct{}{})
}

func (h *InputsHandler) list(w http.ResponseWriter, r *http.Request) {
	var req transport.ListInputsRequest
	if !h.decode(w, r, &req) {
		return
	}
	r = scoped(r, req.Filter.Login, "")
	inputs, err := h.store.ListInputs(r.Context(), req.Filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if inputs == nil {
		inputs = []*models.Input{}
	}
	h.reply(w, transport.ListInputsResponse{Inputs: inputs})
}

// scoped tags the request context with the login and Input it concerns.
func scoped(r *http.Request, login, id string) *http.Request {
	ctx := r.Context()
	if login != "" {
		ctx = events.WithLogin(ctx, login)
	}
	if id != "" {
		ctx = events.WithInputID(ctx, id)
	}
	return r.WithContext(ctx)
}

func requestFields(ctx context.Context) map[string]interface{} {
	fields := map[string]interface{}{"request_id": events.GetRequestID(ctx)}
	if login := events.GetLogin(ctx); login != "" {
		fields["login"] = login
	}
	if id := events.GetInputID(ctx); id != "" {
		fields["input_id"] = id
	}
	return fields
}

func (h *InputsHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err == nil {
		err = json.Unmarshal(body, v)
	}
	if err != nil {
		h.fail(w, r, fmt.Errorf("decode request: %v: %w", err, models.ErrInvalidArgument))
		return false
	}
	return true
}

func (h *InputsHandler) reply(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Warn("Failed to write response")
	}
}

// statusFor maps store errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, models.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *InputsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, name := statusFor(err)
	apiErr := &models.APIError{
		Code:       name,
		Message:    err.Error(),
		StatusCode: code,
		RequestID:  events.GetRequestID(r.Context()),
	}

	logger := h.logger.WithError(err).WithFields(requestFields(r.Context())).WithField("path", r.URL.Path)
	if code >= http.StatusInternalServerError {
		logger.Error("Request failed")
	} else {
		logger.Debug("Request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(apiErr); err != nil {
		h.logger.WithError(err).Warn("Failed to write error response")
	}
}
