package app

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Session store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreDatabase = "database"
)

// Validate rejects settings the server cannot start with. All problems are reported together.
func (c *Config) Validate() error {
	var errs error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("config: server.port %d out of range", c.Server.Port))
	}

	c.Session.Store = strings.ToLower(strings.TrimSpace(c.Session.Store))
	switch c.Session.Store {
	case StoreMemory, StoreRedis, StoreDatabase:
	default:
		errs = multierr.Append(errs, fmt.Errorf("config: session.store %q must be memory, redis or database", c.Session.Store))
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		errs = multierr.Append(errs, fmt.Errorf("config: session.cookie_name is required"))
	}
	if c.Session.TokenBytes < 16 {
		errs = multierr.Append(errs, fmt.Errorf("config: session.token_bytes must be at least 16"))
	}

	if c.Transfer.ChunkSize < 512 || c.Transfer.ChunkSize > 4<<20 {
		errs = multierr.Append(errs, fmt.Errorf("config: transfer.chunk_size %d outside 512..4194304", c.Transfer.ChunkSize))
	}
	if c.Transfer.CompressionLevel < -2 || c.Transfer.CompressionLevel > 9 {
		errs = multierr.Append(errs, fmt.Errorf("config: transfer.compression_level %d outside -2..9", c.Transfer.CompressionLevel))
	}
	if c.SFTP.MaxPacket < 0 {
		errs = multierr.Append(errs, fmt.Errorf("config: sftp.max_packet must not be negative"))
	}

	return errs
}
