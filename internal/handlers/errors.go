package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/charlesng35/sftpgate/internal/transfer"
	apperrors "github.com/charlesng35/sftpgate/pkg/errors"
)

var (
	errIsDirectory = apperrors.New("IS_A_DIRECTORY", "Path is a directory", http.StatusBadRequest)
	errTransport   = apperrors.New("sftp.transport", "Remote file server connection failed", http.StatusBadGateway)
	errCancelled   = apperrors.New("REQUEST_CANCELLED", "Request cancelled", 499)
)

// mapTransferError converts transfer failures into API errors. The remote message is
// kept as the internal cause; clients get the path that failed.
func mapTransferError(err error) error {
	if err == nil {
		return nil
	}

	message := ""
	var terr *transfer.Error
	if errors.As(err, &terr) && terr.Path != "" {
		message = terr.Path
	}

	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, transfer.ErrNotFound):
		return withPath(apperrors.ErrNotFound, "Not found", message).WithInternal(err)
	case errors.Is(err, transfer.ErrPermissionDenied):
		return withPath(apperrors.ErrForbidden, "Permission denied", message).WithInternal(err)
	case errors.Is(err, transfer.ErrConflict):
		return withPath(apperrors.ErrConflict, "File already exists", message).WithInternal(err)
	case errors.Is(err, transfer.ErrIsDirectory):
		return withPath(errIsDirectory, "Path is a directory", message).WithInternal(err)
	case errors.Is(err, transfer.ErrTransport):
		return errTransport.WithInternal(err)
	case errors.Is(err, context.Canceled):
		return errCancelled.WithInternal(err)
	default:
		return apperrors.Wrap(err, "Remote file operation failed")
	}
}

func withPath(base *apperrors.AppError, prefix, path string) *apperrors.AppError {
	if path == "" {
		return base
	}
	return base.WithMessage(prefix + ": " + path)
}
