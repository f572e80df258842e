// Package sftp declares the remote filesystem capabilities the gateway relies on.
// Concrete connections are produced by internal/drivers/ssh.
package sftp

import (
	"context"
	"io"
	"os"

	"github.com/charlesng35/sftpgate/internal/models"
)

// ReadableFile provides sequential read access to a remote file.
type ReadableFile interface {
	io.ReadCloser
}

// WritableFile provides sequential write access to a remote file.
type WritableFile interface {
	io.WriteCloser
}

// Client exposes the subset of SFTP operations required by the gateway.
type Client interface {
	ReadDir(path string) ([]os.FileInfo, error)
	Stat(path string) (os.FileInfo, error)
	Open(path string) (ReadableFile, error)
	OpenFile(path string, flag int) (WritableFile, error)
	Mkdir(path string) error
	Remove(path string) error
	RemoveDirectory(path string) error
	Rename(oldPath, newPath string) error
}

// Session is a connected Client owned by exactly one request.
// Close releases the SFTP subsystem and the underlying SSH connection.
type Session interface {
	Client
	Close() error
}

// Dialer opens authenticated sessions against a remote SFTP server.
type Dialer interface {
	Dial(ctx context.Context, creds models.SFTPCredentials) (Session, error)
}
