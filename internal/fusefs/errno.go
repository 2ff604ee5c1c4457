package fusefs

import (
	"context"
	"errors"
	"syscall"

	"github.com/TheMichaelB/streamfs/internal/models"
)

// Errno maps a filesystem error onto the errno the kernel reports.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var fsErr *models.FSError
	switch {
	case errors.Is(err, models.ErrCancelled), errors.Is(err, context.Canceled):
		return syscall.EINTR
	case errors.As(err, &fsErr):
		switch fsErr.Code {
		case models.CodeFileNotFound:
			return syscall.ENOENT
		case models.CodeFileExists:
			return syscall.EEXIST
		case models.CodeFileNotADirectory:
			return syscall.ENOTDIR
		case models.CodeFileIsADirectory:
			return syscall.EISDIR
		case models.CodeNoPermissions:
			return syscall.EACCES
		}
	}
	return syscall.EIO
}
