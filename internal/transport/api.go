package transport

import "github.com/TheMichaelB/streamfs/internal/models"

// Inputs HTTP/JSON routes.
const (
	RouteCreateInput = "/v1/inputs:create"
	RouteGetInput    = "/v1/inputs:get"
	RouteUpdateInput = "/v1/inputs:update"
	RouteRemoveInput = "/v1/inputs:remove"
	RouteListInputs  = "/v1/inputs:list"
)

// CreateInputRequest is the body of RouteCreateInput.
type CreateInputRequest struct {
	Input *models.Input `json:"input"`
}

// GetInputRequest is the body of RouteGetInput.
type GetInputRequest struct {
	Filter    models.InputFilter `json:"filter"`
	FieldMask []string           `json:"field_mask,omitempty"`
}

// UpdateInputRequest is the body of RouteUpdateInput.
type UpdateInputRequest struct {
	Input     *models.Input `json:"input"`
	FieldMask []string      `json:"field_mask"`
}

// RemoveInputRequest is the body of RouteRemoveInput.
type RemoveInputRequest struct {
	ID string `json:"id"`
}

// ListInputsRequest is the body of RouteListInputs.
type ListInputsRequest struct {
	Filter models.InputFilter `json:"filter"`
}

// InputResponse carries a single Input.
type InputResponse struct {
	Input *models.Input `json:"input"`
}

// ListInputsResponse carries the Inputs of one login.
type ListInputsResponse struct {
	Inputs []*models.Input `json:"inputs"`
}
