package transfer

import (
	"context"
	"strings"

	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
)

// EnsureDir creates dir and any missing parents one segment at a time. Segments that
// already exist as directories are accepted; a file in the way fails with ErrConflict.
func EnsureDir(ctx context.Context, client gatesftp.Client, dir string) error {
	dir = CleanPath(dir)
	if dir == "." || dir == "/" {
		return nil
	}

	if info, err := client.Stat(dir); err == nil {
		if info.IsDir() {
			return nil
		}
		return newError("mkdir", dir, ErrConflict)
	}

	current := ""
	if strings.HasPrefix(dir, "/") {
		current = "/"
	}
	for _, segment := range strings.Split(strings.TrimPrefix(dir, "/"), "/") {
		if err := ctx.Err(); err != nil {
			return err
		}
		if current == "" {
			current = segment
		} else {
			current = JoinPath(current, segment)
		}

		mkErr := client.Mkdir(current)
		if mkErr == nil {
			continue
		}
		info, statErr := client.Stat(current)
		if statErr != nil {
			return Classify("mkdir", current, mkErr)
		}
		if !info.IsDir() {
			return &Error{Op: "mkdir", Path: current, Kind: ErrConflict, Err: mkErr}
		}
	}
	return nil
}
