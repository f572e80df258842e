package handlers

import (
	"errors"
	stdpath "path"
	"strings"
	"unicode/utf8"

	"github.com/charlesng35/sftpgate/internal/transfer"
)

var (
	errPathEncoding = errors.New("path must be valid UTF-8")
	errPathNUL      = errors.New("path contains invalid characters")
)

// sanitizeRemotePath validates a client supplied remote path and cleans it. Empty
// paths mean the login directory. Parent segments are passed through: the remote
// server confines the account, and the gateway mirrors the account's full view.
func sanitizeRemotePath(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ".", nil
	}
	if !utf8.ValidString(trimmed) {
		return "", errPathEncoding
	}
	if strings.ContainsRune(trimmed, '\x00') {
		return "", errPathNUL
	}
	return transfer.CleanPath(stdpath.Clean(trimmed)), nil
}

func utf8Safe(name string) bool {
	return utf8.ValidString(name) && !strings.ContainsRune(name, '\x00')
}
