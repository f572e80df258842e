package sftptest

import (
	"context"
	"sync"

	"github.com/charlesng35/sftpgate/internal/models"
	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
)

// Dialer hands out sessions over one shared FS and records every dial and close.
type Dialer struct {
	FS *FS
	// Err, when set, fails every dial.
	Err error

	mu     sync.Mutex
	dials    []models.SFTPCredentials
	sessions int
	closes   int
}

var _ gatesftp.Dialer = (*Dialer)(nil)

// NewDialer returns a Dialer over fs.
func NewDialer(fs *FS) *Dialer {
	return &Dialer{FS: fs}
}

func (d *Dialer) Dial(ctx context.Context, creds models.SFTPCredentials) (gatesftp.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, creds)
	if d.Err != nil {
		return nil, d.Err
	}
	d.sessions++
	return &dialedSession{FS: d.FS, dialer: d}, nil
}

// Dials returns the credentials of every dial attempt in order.
func (d *Dialer) Dials() []models.SFTPCredentials {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.SFTPCredentials(nil), d.dials...)
}

// Open reports dialled sessions not yet closed.
func (d *Dialer) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions - d.closes
}

type dialedSession struct {
	*FS
	dialer *Dialer
	once   sync.Once
}

func (s *dialedSession) Close() error {
	s.once.Do(func() {
		s.dialer.mu.Lock()
		s.dialer.closes++
		s.dialer.mu.Unlock()
	})
	return nil
}
