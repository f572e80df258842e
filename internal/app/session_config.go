package app

import (
	"github.com/charlesng35/sftpgate/internal/auth"
	sshdriver "github.com/charlesng35/sftpgate/internal/drivers/ssh"
	"github.com/charlesng35/sftpgate/internal/transfer"
)

// SessionServiceConfig adapts session settings for auth.NewSessionService.
func (c SessionConfig) SessionServiceConfig() auth.SessionConfig {
	return auth.SessionConfig{
		TTL:        c.TTL,
		TokenBytes: c.TokenBytes,
	}
}

// DialerConfig adapts SFTP settings for the SSH dialer.
func (c SFTPConfig) DialerConfig() sshdriver.Config {
	return sshdriver.Config{
		DialTimeout:    c.DialTimeout,
		MaxPacket:      c.MaxPacket,
		KnownHostsFile: c.KnownHosts,
	}
}

// ArchiveOptions adapts transfer settings for the archive builder.
func (c TransferConfig) ArchiveOptions() transfer.ArchiveOptions {
	opts := transfer.DefaultArchiveOptions()
	if c.ChunkSize > 0 {
		opts.ChunkSize = c.ChunkSize
	}
	opts.CompressionLevel = c.CompressionLevel
	return opts
}
