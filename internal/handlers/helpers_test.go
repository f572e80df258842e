package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	pkgsftp "github.com/pkg/sftp"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sftpgate/internal/transfer"
	apperrors "github.com/charlesng35/sftpgate/pkg/errors"
)

func TestMapTransferError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", transfer.Classify("stat", "/a", os.ErrNotExist), http.StatusNotFound, "NOT_FOUND"},
		{"sftp no such file", transfer.Classify("open", "/a", &pkgsftp.StatusError{Code: uint32(pkgsftp.ErrSSHFxNoSuchFile)}), http.StatusNotFound, "NOT_FOUND"},
		{"permission", transfer.Classify("open", "/a", os.ErrPermission), http.StatusForbidden, "FORBIDDEN"},
		{"conflict", transfer.Classify("create", "/a", os.ErrExist), http.StatusConflict, "CONFLICT"},
		{"directory", transfer.Classify("open", "/a", transfer.ErrIsDirectory), http.StatusBadRequest, "IS_A_DIRECTORY"},
		{"transport", transfer.Classify("read", "/a", io.ErrUnexpectedEOF), http.StatusBadGateway, "sftp.transport"},
		{"cancelled", context.Canceled, 499, "REQUEST_CANCELLED"},
		{"unclassified", errors.New("weird"), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"app error passthrough", apperrors.ErrBadRequest, http.StatusBadRequest, "BAD_REQUEST"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			appErr := apperrors.FromError(mapTransferError(tc.err))
			require.Equal(t, tc.status, appErr.StatusCode)
			require.Equal(t, tc.code, appErr.Code)
		})
	}

	require.NoError(t, mapTransferError(nil))
}

func TestMapTransferErrorNamesPath(t *testing.T) {
	appErr := apperrors.FromError(mapTransferError(transfer.Classify("stat", "/srv/x", os.ErrNotExist)))
	require.Equal(t, "Not found: /srv/x", appErr.Message)
	require.ErrorIs(t, appErr, os.ErrNotExist)
}

func TestSanitizeRemotePath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", ".", false},
		{"   ", ".", false},
		{".", ".", false},
		{"/", "/", false},
		{"/a/b/", "/a/b", false},
		{"a//b/./c", "a/b/c", false},
		{"/a/../b", "/b", false},
		{"../outside", "../outside", false},
		{"bad\x00name", "", true},
		{string([]byte{0xff, 0xfe}), "", true},
	}

	for _, tc := range tests {
		got, err := sanitizeRemotePath(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestUploadName(t *testing.T) {
	tests := map[string]string{
		"a.txt":                 "a.txt",
		"dir/a.txt":             "a.txt",
		`C:\Users\me\photo.jpg`: "photo.jpg",
		"../../etc/passwd":      "passwd",
	}
	for in, want := range tests {
		got, ok := uploadName(in)
		require.True(t, ok, in)
		require.Equal(t, want, got)
	}

	for _, bad := range []string{"", ".", "..", "/", "nul\x00"} {
		_, ok := uploadName(bad)
		require.False(t, ok, "%q", bad)
	}
}

func TestAttachmentAndArchiveNames(t *testing.T) {
	require.Equal(t, `attachment; filename="report.pdf"`, attachment("report.pdf"))
	require.Equal(t, `attachment; filename="say \"hi\".txt"`, attachment(`say "hi".txt`))
	require.Equal(t, `attachment; filename="r_sum_.txt"; filename*=UTF-8''r%C3%A9sum%C3%A9.txt`, attachment("résumé.txt"))

	require.Equal(t, "proj.zip", archiveFilename("/home/u/proj"))
	require.Equal(t, "root.zip", archiveFilename("/"))
	require.Equal(t, "root.zip", archiveFilename("."))
	require.Equal(t, "x.zip", archiveFilename("x"))
}
