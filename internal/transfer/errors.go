package transfer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	pkgsftp "github.com/pkg/sftp"
)

// Failure kinds surfaced by the transfer pipeline. Match them with errors.Is.
var (
	ErrNotFound         = errors.New("no such file or directory")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("destination already exists")
	ErrIsDirectory      = errors.New("is a directory")
	ErrTransport        = errors.New("remote transport failure")
)

// Error records the remote operation and path that failed along with its kind.
// Kind is nil for unclassified failures.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	cause := e.Err
	if cause == nil {
		cause = e.Kind
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, cause)
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Classify wraps err with op and path and assigns it a failure kind. Errors that are
// already classified are returned unchanged.
func Classify(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Op: op, Path: path, Kind: kindOf(err), Err: err}
}

func newError(op, path string, kind error) error {
	return &Error{Op: op, Path: path, Kind: kind}
}

func kindOf(err error) error {
	var statusErr *pkgsftp.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.FxCode() {
		case pkgsftp.ErrSSHFxNoSuchFile:
			return ErrNotFound
		case pkgsftp.ErrSSHFxPermissionDenied:
			return ErrPermissionDenied
		case pkgsftp.ErrSSHFxConnectionLost, pkgsftp.ErrSSHFxNoConnection:
			return ErrTransport
		}
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, os.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, os.ErrExist):
		return ErrConflict
	case errors.Is(err, pkgsftp.ErrSSHFxConnectionLost),
		errors.Is(err, pkgsftp.ErrSSHFxNoConnection),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed):
		return ErrTransport
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrTransport
	}
	return nil
}
