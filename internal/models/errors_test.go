package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"

	"github.com/TheMichaelB/streamfs/internal/models"
)

func TestFSErrorMatchesSentinelByCode(t *testing.T) {
	err := fmt.Errorf("read: %w", models.FileNotFound("/octocat/missing"))

	assert.ErrorIs(t, err, models.ErrFileNotFound)
	assert.NotErrorIs(t, err, models.ErrFileExists)
	assert.Equal(t, "read: FileNotFound (/octocat/missing)", err.Error())
}

func TestUnavailableUnwrapsCause(t *testing.T) {
	err := models.Unavailable(models.ErrNotConnected, "list inputs for %s", "octocat")

	assert.ErrorIs(t, err, models.ErrUnavailable)
	assert.ErrorIs(t, err, models.ErrNotConnected)
	assert.Contains(t, err.Error(), "list inputs for octocat")
}

func TestNoPermissionsMessage(t *testing.T) {
	err := models.NoPermissions("input %q does not accept %s files", "Hello", ".exe")

	assert.ErrorIs(t, err, models.ErrNoPermissions)
	assert.Equal(t, `NoPermissions: input "Hello" does not accept .exe files`, err.Error())
}

func TestAPIError(t *testing.T) {
	err := &models.APIError{
		Code:       "NOT_FOUND",
		Message:    "input not found",
		StatusCode: 404,
		RequestID:  "req-123",
	}

	assert.Equal(t, "API error 404 (NOT_FOUND): input not found", err.Error())
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NotErrorIs(t, err, models.ErrInvalidArgument)

	bad := &models.APIError{Code: "INVALID_ARGUMENT", StatusCode: 400}
	assert.True(t, errors.Is(bad, models.ErrInvalidArgument))
}

func TestTransferError(t *testing.T) {
	err := &models.TransferError{
		Op:           "download",
		ResourceName: "/blobs/abc/3",
		Code:         codes.DataLoss,
		Detail:       "checksum mismatch",
	}
	assert.Equal(t, "download /blobs/abc/3 failed with DataLoss: checksum mismatch", err.Error())
}

func TestIntegrityError(t *testing.T) {
	err := &models.IntegrityError{Path: "/blobs/x/1", Expected: "aa", Actual: "bb"}
	assert.Equal(t, "integrity check failed for /blobs/x/1: expected aa, got bb", err.Error())
}
