package handlers

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	stdpath "path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sftpgate/internal/middleware"
	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
	"github.com/charlesng35/sftpgate/internal/transfer"
	apperrors "github.com/charlesng35/sftpgate/pkg/errors"
	"github.com/charlesng35/sftpgate/pkg/response"
)

// FileHandler exposes remote file operations over the SFTP connection bound to the
// request by middleware.RemoteSession.
type FileHandler struct {
	opts transfer.ArchiveOptions
}

// NewFileHandler constructs a FileHandler. Zero options fall back to transfer defaults.
func NewFileHandler(opts transfer.ArchiveOptions) *FileHandler {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = transfer.DefaultChunkSize
	}
	return &FileHandler{opts: opts}
}

type fileEntryDTO struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
	IsDir    bool   `json:"is_dir"`
}

func toFileEntryDTO(name string, info os.FileInfo) fileEntryDTO {
	return fileEntryDTO{
		Name:     name,
		Size:     info.Size(),
		Modified: info.ModTime().UTC().Format(time.RFC3339),
		IsDir:    info.IsDir(),
	}
}

type deleteFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type deleteResponse struct {
	Deleted []string        `json:"deleted"`
	Failed  []deleteFailure `json:"failed"`
}

type renameRequest struct {
	OldPath string `json:"old_path" validate:"required,remotepath"`
	NewPath string `json:"new_path" validate:"required,remotepath"`
}

type mkdirRequest struct {
	Path string `json:"path" validate:"required,remotepath"`
}

func (h *FileHandler) remote(c *gin.Context) (gatesftp.Client, bool) {
	client, ok := middleware.RemoteClient(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return nil, false
	}
	return client, true
}

// GET /api/files/?path=
func (h *FileHandler) List(c *gin.Context) {
	client, ok := h.remote(c)
	if !ok {
		return
	}
	dir, err := sanitizeRemotePath(c.Query("path"))
	if err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	infos, err := client.ReadDir(dir)
	if err != nil {
		response.Error(c, mapTransferError(transfer.Classify("readdir", dir, err)))
		return
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	response.JSON(c, http.StatusOK, names)
}

// GET /api/files/meta/?path=
func (h *FileHandler) ListMeta(c *gin.Context) {
	client, ok := h.remote(c)
	if !ok {
		return
	}
	dir, err := sanitizeRemotePath(c.Query("path"))
	if err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	infos, err := client.ReadDir(dir)
	if err != nil {
		response.Error(c, mapTransferError(transfer.Classify("readdir", dir, err)))
		return
	}

	entries := make([]fileEntryDTO, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, toFileEntryDTO(info.Name(), info))
	}
	response.JSON(c, http.StatusOK, entries)
}

// GET /api/files/stat/?path=
func (h *FileHandler) Stat(c *gin.Context) {
	client, ok := h.remote(c)
	if !ok {
		return
	}
	target, err := sanitizeRemotePath(c.Query("path"))
	if err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	info, err := client.Stat(target)
	if err != nil {
		response.Error(c, mapTransferError(transfer.Classify("stat", target, err)))
		return
	}
	response.JSON(c, http.StatusOK, toFileEntryDTO(displayName(target), info))
}

// GET /api/files/download/?path=
func (h *FileHandler) Download(c *gin.Context) {
	client, ok := h.remote(c)
	if !ok {
		return
	}
	raw := c.Query("path")
	if strings.TrimSpace(raw) == "" {
		response.Error(c, apperrors.NewBadRequest("path is required"))
		return
	}
	target, err := sanitizeRemotePath(raw)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	info, err := client.Stat(target)
	if err != nil {
		response.Error(c, mapTransferError(transfer.Classify("stat", target, err)))
		return
	}

	if info.IsDir() {
		h.downloadArchive(c, client, target)
		return
	}
	h.downloadFile(c, client, target, info)
}

func (h *FileHandler) downloadFile(c *gin.Context, client gatesftp.Client, target string, info os.FileInfo) {
	reader, err := transfer.OpenChunkReaderInfo(client, target, info, h.opts.ChunkSize)
	if err != nil {
		response.Error(c, mapTransferError(err))
		return
	}

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", attachment(stdpath.Base(target)))
	c.Header("Content-Length", strconv.FormatInt(info.Size(), 10))
	c.Status(http.StatusOK)

	tl := startTransfer(c, directionDownload, target)
	written, err := reader.CopyTo(c.Request.Context(), c.Writer)
	tl.finish(written, err)
	h.finishStream(c, err)
}

func (h *FileHandler) downloadArchive(c *gin.Context, client gatesftp.Client, root string) {
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", attachment(archiveFilename(root)))
	c.Status(http.StatusOK)

	tl := startTransfer(c, directionArchive, root)
	stats, err := transfer.NewArchiveBuilder(client, h.opts).Build(c.Request.Context(), root, c.Writer)
	tl.finishArchive(stats, err)
	h.finishStream(c, err)
}

// finishStream commits the response after a streamed body. Failures before the first
// byte still become JSON errors; later ones can only truncate the body.
func (h *FileHandler) finishStream(c *gin.Context, err error) {
	if err == nil {
		c.Writer.WriteHeaderNow()
		return
	}
	if !c.Writer.Written() {
		header := c.Writer.Header()
		header.Del("Content-Type")
		header.Del("Content-Disposition")
		header.Del("Content-Length")
		response.Error(c, mapTransferError(err))
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// POST /api/files/upload/?dest_dir=
func (h *FileHandler) Upload(c *gin.Context) {
	client, ok := h.remote(c)
	if !ok {
		return
	}
	rawDest := c.Query("dest_dir")
	if strings.TrimSpace(rawDest) == "" {
		response.Error(c, apperrors.NewBadRequest("dest_dir is required"))
		return
	}
	dest, err := sanitizeRemotePath(rawDest)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	reader, err := c.Request.MultipartReader()
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("multipart form body is required"))
		return
	}

	ctx := c.Request.Context()
	uploaded := make([]string, 0)
	ensured := false
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			response.Error(c, apperrors.NewBadRequest("malformed multipart body").WithInternal(err))
			return
		}

		name, ok := uploadName(part.FileName())
		if !ok {
			_ = part.Close()
			continue
		}

		if !ensured {
			if err := transfer.EnsureDir(ctx, client, dest); err != nil {
				_ = part.Close()
				response.Error(c, mapTransferError(err))
				return
			}
			ensured = true
		}

		target := transfer.JoinPath(dest, name)
		tl := startTransfer(c, directionUpload, target)
		written, err := transfer.WriteFile(ctx, client, target, part, h.opts.ChunkSize)
		_ = part.Close()
		tl.finish(written, err)
		if err != nil {
			response.Error(c, mapTransferError(err))
			return
		}
		uploaded = append(uploaded, name)
	}

	response.JSON(c, http.StatusOK, gin.H{"uploaded": uploaded})
}

// DELETE /api/files/delete/
func (h *FileHandler) Delete(c *gin.Context) {
	client, ok := h.remote(c)
	if !ok {
		return
	}
	var paths []string
	if err := c.ShouldBindJSON(&paths); err != nil {
		response.Error(c, apperrors.NewBadRequest("body must be a JSON array of paths"))
		return
	}

	resp := deleteResponse{Deleted: make([]string, 0, len(paths)), Failed: make([]deleteFailure, 0)}
	for _, raw := range paths {
		target, err := sanitizeRemotePath(raw)
		if err == nil && (target == "." || target == "/") {
			err = fmt.Errorf("refusing to delete %q", raw)
		}
		if err == nil {
			err = transfer.RemoveAll(c.Request.Context(), client, target)
		}
		if err != nil {
			resp.Failed = append(resp.Failed, deleteFailure{Path: raw, Error: err.Error()})
			continue
		}
		resp.Deleted = append(resp.Deleted, raw)
	}
	response.JSON(c, http.StatusOK, resp)
}

// PATCH /api/files/rename/
func (h *FileHandler) Rename(c *gin.Context) {
	client, ok := h.remote(c)
	if !ok {
		return
	}
	var req renameRequest
	if !bindAndValidate(c, &req) {
		return
	}
	oldPath, err := sanitizeRemotePath(req.OldPath)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}
	newPath, err := sanitizeRemotePath(req.NewPath)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	if err := client.Rename(oldPath, newPath); err != nil {
		response.Error(c, mapTransferError(transfer.Classify("rename", oldPath, err)))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"renamed": req.OldPath, "to": req.NewPath})
}

// POST /api/files/mkdir/
func (h *FileHandler) Mkdir(c *gin.Context) {
	client, ok := h.remote(c)
	if !ok {
		return
	}
	var req mkdirRequest
	if !bindAndValidate(c, &req) {
		return
	}
	target, err := sanitizeRemotePath(req.Path)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	if err := client.Mkdir(target); err != nil {
		response.Error(c, apperrors.NewBadRequest(transfer.Classify("mkdir", target, err).Error()).WithInternal(err))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"created": req.Path})
}

func displayName(p string) string {
	name := stdpath.Base(p)
	if name == "." || name == "/" {
		return p
	}
	return name
}

func archiveFilename(root string) string {
	base := stdpath.Base(root)
	if base == "" || base == "." || base == "/" {
		base = "root"
	}
	return base + ".zip"
}

// uploadName reduces a client supplied file name to a single path segment.
func uploadName(filename string) (string, bool) {
	name := stdpath.Base(strings.ReplaceAll(filename, `\`, "/"))
	switch name {
	case "", ".", "..", "/":
		return "", false
	}
	if !utf8Safe(name) {
		return "", false
	}
	return name, true
}

// attachment builds a Content-Disposition value with a quoted ASCII filename and an
// RFC 5987 filename* for anything else.
func attachment(filename string) string {
	ascii := true
	for i := 0; i < len(filename); i++ {
		if filename[i] < 0x20 || filename[i] >= 0x7f {
			ascii = false
			break
		}
	}
	quoted := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(filename)
	if ascii {
		return `attachment; filename="` + quoted + `"`
	}
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r >= 0x7f {
			return '_'
		}
		return r
	}, quoted)
	return `attachment; filename="` + fallback + `"; filename*=UTF-8''` + url.PathEscape(filename)
}
