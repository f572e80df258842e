package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	pkgsftp "github.com/pkg/sftp"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/charlesng35/sftpgate/internal/models"
	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
	"github.com/charlesng35/sftpgate/pkg/logger"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultMaxPacket   = 1 << 15
)

// Config tunes the SSH transport used for every SFTP session.
type Config struct {
	DialTimeout    time.Duration
	MaxPacket      int
	KnownHostsFile string
}

// Dialer opens one SFTP session per call.
type Dialer struct {
	cfg             Config
	hostKeyCallback gossh.HostKeyCallback
}

var _ gatesftp.Dialer = (*Dialer)(nil)

// NewDialer validates cfg and prepares host key verification. Without a known_hosts
// file every host key is accepted.
func NewDialer(cfg Config) (*Dialer, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.MaxPacket <= 0 {
		cfg.MaxPacket = defaultMaxPacket
	}

	callback := gossh.InsecureIgnoreHostKey()
	if path := strings.TrimSpace(cfg.KnownHostsFile); path != "" {
		cb, err := knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("ssh dialer: load known hosts: %w", err)
		}
		callback = cb
	} else {
		logger.WithModule("ssh").Warn("host key verification disabled; set sftp.known_hosts to enable it")
	}

	return &Dialer{cfg: cfg, hostKeyCallback: callback}, nil
}

// Dial authenticates against the remote host and starts the sftp subsystem.
func (d *Dialer) Dial(ctx context.Context, creds models.SFTPCredentials) (gatesftp.Session, error) {
	if d == nil {
		return nil, errors.New("ssh dialer: not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	creds = creds.Normalize()

	clientCfg := d.buildClientConfig(creds)
	address := creds.Address()

	netDialer := &net.Dialer{Timeout: d.cfg.DialTimeout}
	conn, err := netDialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: dial %s: %w", address, err)
	}

	// The handshake ignores ctx, so bound it with a deadline and clear it afterwards.
	deadline := time.Now().Add(d.cfg.DialTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	sshConn, chans, reqs, err := gossh.NewClientConn(conn, address, clientCfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh dialer: handshake: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	sshClient := gossh.NewClient(sshConn, chans, reqs)
	sftpClient, err := pkgsftp.NewClient(sshClient, pkgsftp.MaxPacket(d.cfg.MaxPacket))
	if err != nil {
		_ = sshClient.Close()
		return nil, fmt.Errorf("ssh dialer: start sftp subsystem: %w", err)
	}

	return NewConnection(sshClient, sftpClient), nil
}

func (d *Dialer) buildClientConfig(creds models.SFTPCredentials) *gossh.ClientConfig {
	password := creds.Password
	return &gossh.ClientConfig{
		User: creds.Username,
		Auth: []gossh.AuthMethod{
			gossh.Password(password),
			gossh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: d.hostKeyCallback,
		Timeout:         d.cfg.DialTimeout,
	}
}
