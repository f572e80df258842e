package ssh

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"

	pkgsftp "github.com/pkg/sftp"
	"go.uber.org/multierr"
	gossh "golang.org/x/crypto/ssh"

	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
)

var errClientUnavailable = errors.New("ssh: sftp client unavailable")

var _ gatesftp.Session = (*Connection)(nil)

// Connection is an SFTP session bound to its own SSH transport.
// It is not shared between requests; Close tears down both layers.
type Connection struct {
	ssh  *gossh.Client
	sftp *pkgsftp.Client

	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps an established SFTP client. sshClient may be nil when the
// SFTP client runs over a transport that is not owned by the connection.
func NewConnection(sshClient *gossh.Client, client *pkgsftp.Client) *Connection {
	return &Connection{ssh: sshClient, sftp: client}
}

func (c *Connection) ReadDir(path string) ([]os.FileInfo, error) {
	if c == nil || c.sftp == nil {
		return nil, errClientUnavailable
	}
	return c.sftp.ReadDir(path)
}

func (c *Connection) Stat(path string) (os.FileInfo, error) {
	if c == nil || c.sftp == nil {
		return nil, errClientUnavailable
	}
	return c.sftp.Stat(path)
}

func (c *Connection) Open(path string) (gatesftp.ReadableFile, error) {
	if c == nil || c.sftp == nil {
		return nil, errClientUnavailable
	}
	f, err := c.sftp.Open(path)
	if err != nil {
		return nil, err
	}
	return &fileAdapter{file: f}, nil
}

func (c *Connection) OpenFile(path string, flag int) (gatesftp.WritableFile, error) {
	if c == nil || c.sftp == nil {
		return nil, errClientUnavailable
	}
	f, err := c.sftp.OpenFile(path, flag)
	if err != nil {
		return nil, err
	}
	return &fileAdapter{file: f}, nil
}

func (c *Connection) Mkdir(path string) error {
	if c == nil || c.sftp == nil {
		return errClientUnavailable
	}
	return c.sftp.Mkdir(path)
}

func (c *Connection) Remove(path string) error {
	if c == nil || c.sftp == nil {
		return errClientUnavailable
	}
	return c.sftp.Remove(path)
}

func (c *Connection) RemoveDirectory(path string) error {
	if c == nil || c.sftp == nil {
		return errClientUnavailable
	}
	return c.sftp.RemoveDirectory(path)
}

func (c *Connection) Rename(oldPath, newPath string) error {
	if c == nil || c.sftp == nil {
		return errClientUnavailable
	}
	return c.sftp.Rename(oldPath, newPath)
}

// Close shuts down the SFTP subsystem and then the SSH client. Safe to call repeatedly.
func (c *Connection) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		if c.sftp != nil {
			c.closeErr = multierr.Append(c.closeErr, ignoreClosed(c.sftp.Close()))
		}
		if c.ssh != nil {
			c.closeErr = multierr.Append(c.closeErr, ignoreClosed(c.ssh.Close()))
		}
	})
	return c.closeErr
}

func ignoreClosed(err error) error {
	// The SSH client reports EOF once the sftp layer already tore the channel down.
	if err == nil || errors.Is(err, os.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// fileAdapter narrows *pkgsftp.File to plain sequential reads and writes so callers
// cannot switch on the concurrent WriteTo/ReadFrom fast paths.
type fileAdapter struct {
	file *pkgsftp.File
}

func (a *fileAdapter) Read(p []byte) (int, error) {
	if a == nil || a.file == nil {
		return 0, errors.New("ssh: sftp file unavailable")
	}
	return a.file.Read(p)
}

func (a *fileAdapter) Write(p []byte) (int, error) {
	if a == nil || a.file == nil {
		return 0, errors.New("ssh: sftp file unavailable")
	}
	return a.file.Write(p)
}

func (a *fileAdapter) Close() error {
	if a == nil || a.file == nil {
		return nil
	}
	return a.file.Close()
}
