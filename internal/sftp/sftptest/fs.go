package sftptest

import (
	"bytes"
	"errors"
	"io"
	"os"
	stdpath "path"
	"sort"
	"strings"
	"sync"
	"time"

	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
)

// Op names a filesystem call for fault injection and call accounting.
type Op string

const (
	OpReadDir         Op = "readdir"
	OpStat            Op = "stat"
	OpOpen            Op = "open"
	OpOpenFile        Op = "openfile"
	OpRead            Op = "read"
	OpWrite           Op = "write"
	OpMkdir           Op = "mkdir"
	OpRemove          Op = "remove"
	OpRemoveDirectory Op = "rmdir"
	OpRename          Op = "rename"
)

// DefaultModTime is stamped on nodes created without an explicit time.
var DefaultModTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type node struct {
	dir      bool
	data     []byte
	modTime  time.Time
	children []string
}

type fault struct {
	err   error
	after int64
}

// FS is an in-memory tree implementing sftp.Client. Listings preserve insertion
// order so tests can pin sibling ordering.
type FS struct {
	mu     sync.Mutex
	nodes  map[string]*node
	faults map[Op]map[string]fault
	calls  []Call
	open   int
	peak   int
	closed bool
}

// Call records one filesystem operation.
type Call struct {
	Op   Op
	Path string
}

var _ gatesftp.Session = (*FS)(nil)

// NewFS returns a tree containing only the root directory.
func NewFS() *FS {
	return &FS{
		nodes:  map[string]*node{"/": {dir: true, modTime: DefaultModTime}},
		faults: make(map[Op]map[string]fault),
	}
}

func clean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return stdpath.Clean(p)
}

func pathErr(op Op, p string, err error) error {
	return &os.PathError{Op: string(op), Path: p, Err: err}
}

// AddDir creates p and any missing parents.
func (f *FS) AddDir(p string) *FS {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mkdirAll(clean(p))
	return f
}

// AddFile creates p with data, creating parents as needed.
func (f *FS) AddFile(p string, data []byte) *FS {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	parent := f.mkdirAll(stdpath.Dir(p))
	if _, ok := f.nodes[p]; !ok {
		parent.children = append(parent.children, stdpath.Base(p))
	}
	f.nodes[p] = &node{data: append([]byte(nil), data...), modTime: DefaultModTime}
	return f
}

func (f *FS) mkdirAll(p string) *node {
	if n, ok := f.nodes[p]; ok {
		return n
	}
	parent := f.mkdirAll(stdpath.Dir(p))
	parent.children = append(parent.children, stdpath.Base(p))
	n := &node{dir: true, modTime: DefaultModTime}
	f.nodes[p] = n
	return n
}

// Fail makes op on p return err. For OpRead and OpWrite the failure triggers once
// `after` bytes have been transferred; other ops fail immediately.
func (f *FS) Fail(op Op, p string, err error) *FS {
	return f.FailAfter(op, p, 0, err)
}

// FailAfter is Fail with a byte threshold for reads and writes.
func (f *FS) FailAfter(op Op, p string, after int64, err error) *FS {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.faults[op] == nil {
		f.faults[op] = make(map[string]fault)
	}
	f.faults[op][clean(p)] = fault{err: err, after: after}
	return f
}

func (f *FS) fault(op Op, p string) (fault, bool) {
	ft, ok := f.faults[op][p]
	return ft, ok
}

func (f *FS) record(op Op, p string) {
	f.calls = append(f.calls, Call{Op: op, Path: p})
}

// Calls returns every recorded call in order.
func (f *FS) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CountCalls returns how many times op was issued against p.
func (f *FS) CountCalls(op Op, p string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	count := 0
	for _, c := range f.calls {
		if c.Op == op && c.Path == p {
			count++
		}
	}
	return count
}

// OpenHandles reports handles that have not been closed yet.
func (f *FS) OpenHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// PeakOpenHandles reports the maximum number of simultaneously open handles.
func (f *FS) PeakOpenHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

// Closed reports whether Close was called on the session.
func (f *FS) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Exists reports whether p is present.
func (f *FS) Exists(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.nodes[clean(p)]
	return ok
}

// ReadFile returns a copy of the file contents at p.
func (f *FS) ReadFile(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[clean(p)]
	if !ok || n.dir {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

// Paths lists every node below the root, sorted.
func (f *FS) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.nodes))
	for p := range f.nodes {
		if p != "/" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (f *FS) ReadDir(p string) ([]os.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	f.record(OpReadDir, p)
	if ft, ok := f.fault(OpReadDir, p); ok {
		return nil, ft.err
	}
	n, ok := f.nodes[p]
	if !ok {
		return nil, pathErr(OpReadDir, p, os.ErrNotExist)
	}
	if !n.dir {
		return nil, pathErr(OpReadDir, p, errors.New("not a directory"))
	}
	infos := make([]os.FileInfo, 0, len(n.children))
	for _, name := range n.children {
		infos = append(infos, newFileInfo(name, f.nodes[stdpath.Join(p, name)]))
	}
	return infos, nil
}

func (f *FS) Stat(p string) (os.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	f.record(OpStat, p)
	if ft, ok := f.fault(OpStat, p); ok {
		return nil, ft.err
	}
	n, ok := f.nodes[p]
	if !ok {
		return nil, pathErr(OpStat, p, os.ErrNotExist)
	}
	return newFileInfo(stdpath.Base(p), n), nil
}

func (f *FS) Open(p string) (gatesftp.ReadableFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	f.record(OpOpen, p)
	if ft, ok := f.fault(OpOpen, p); ok {
		return nil, ft.err
	}
	n, ok := f.nodes[p]
	if !ok {
		return nil, pathErr(OpOpen, p, os.ErrNotExist)
	}
	if n.dir {
		return nil, pathErr(OpOpen, p, errors.New("is a directory"))
	}
	f.acquire()
	file := &readFile{fs: f, path: p, reader: bytes.NewReader(append([]byte(nil), n.data...))}
	if ft, ok := f.fault(OpRead, p); ok {
		file.fault = &ft
	}
	return file, nil
}

func (f *FS) OpenFile(p string, flag int) (gatesftp.WritableFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	f.record(OpOpenFile, p)
	if ft, ok := f.fault(OpOpenFile, p); ok {
		return nil, ft.err
	}
	parent, ok := f.nodes[stdpath.Dir(p)]
	if !ok || !parent.dir {
		return nil, pathErr(OpOpenFile, p, os.ErrNotExist)
	}
	existing, exists := f.nodes[p]
	switch {
	case exists && existing.dir:
		return nil, pathErr(OpOpenFile, p, errors.New("is a directory"))
	case exists && flag&os.O_EXCL != 0:
		return nil, pathErr(OpOpenFile, p, os.ErrExist)
	case !exists && flag&os.O_CREATE == 0:
		return nil, pathErr(OpOpenFile, p, os.ErrNotExist)
	case !exists:
		parent.children = append(parent.children, stdpath.Base(p))
		existing = &node{modTime: DefaultModTime}
		f.nodes[p] = existing
	case flag&os.O_TRUNC != 0:
		existing.data = nil
	}
	f.acquire()
	file := &writeFile{fs: f, node: existing}
	if ft, ok := f.fault(OpWrite, p); ok {
		file.fault = &ft
	}
	return file, nil
}

func (f *FS) Mkdir(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	f.record(OpMkdir, p)
	if ft, ok := f.fault(OpMkdir, p); ok {
		return ft.err
	}
	if _, ok := f.nodes[p]; ok {
		return pathErr(OpMkdir, p, os.ErrExist)
	}
	parent, ok := f.nodes[stdpath.Dir(p)]
	if !ok || !parent.dir {
		return pathErr(OpMkdir, p, os.ErrNotExist)
	}
	parent.children = append(parent.children, stdpath.Base(p))
	f.nodes[p] = &node{dir: true, modTime: DefaultModTime}
	return nil
}

func (f *FS) Remove(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	f.record(OpRemove, p)
	if ft, ok := f.fault(OpRemove, p); ok {
		return ft.err
	}
	n, ok := f.nodes[p]
	if !ok {
		return pathErr(OpRemove, p, os.ErrNotExist)
	}
	if n.dir {
		return pathErr(OpRemove, p, errors.New("is a directory"))
	}
	f.unlink(p)
	return nil
}

func (f *FS) RemoveDirectory(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	f.record(OpRemoveDirectory, p)
	if ft, ok := f.fault(OpRemoveDirectory, p); ok {
		return ft.err
	}
	n, ok := f.nodes[p]
	if !ok {
		return pathErr(OpRemoveDirectory, p, os.ErrNotExist)
	}
	if !n.dir {
		return pathErr(OpRemoveDirectory, p, errors.New("not a directory"))
	}
	if len(n.children) > 0 {
		return pathErr(OpRemoveDirectory, p, errors.New("directory not empty"))
	}
	f.unlink(p)
	return nil
}

func (f *FS) Rename(oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	oldPath, newPath = clean(oldPath), clean(newPath)
	f.record(OpRename, oldPath)
	if ft, ok := f.fault(OpRename, oldPath); ok {
		return ft.err
	}
	if _, ok := f.nodes[oldPath]; !ok {
		return pathErr(OpRename, oldPath, os.ErrNotExist)
	}
	if _, ok := f.nodes[newPath]; ok {
		return pathErr(OpRename, newPath, os.ErrExist)
	}
	parent, ok := f.nodes[stdpath.Dir(newPath)]
	if !ok || !parent.dir {
		return pathErr(OpRename, newPath, os.ErrNotExist)
	}

	moved := make(map[string]*node)
	for p, n := range f.nodes {
		if p == oldPath || strings.HasPrefix(p, oldPath+"/") {
			moved[newPath+strings.TrimPrefix(p, oldPath)] = n
		}
	}
	f.unlink(oldPath)
	for p, n := range moved {
		f.nodes[p] = n
	}
	parent.children = append(parent.children, stdpath.Base(newPath))
	return nil
}

// Close marks the session closed. Calls after Close still succeed so tests can
// inspect the tree.
func (f *FS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FS) unlink(p string) {
	for key := range f.nodes {
		if key == p || strings.HasPrefix(key, p+"/") {
			delete(f.nodes, key)
		}
	}
	parent := f.nodes[stdpath.Dir(p)]
	if parent == nil {
		return
	}
	name := stdpath.Base(p)
	for i, child := range parent.children {
		if child == name {
			parent.children = append(parent.children[:i:i], parent.children[i+1:]...)
			break
		}
	}
}

func (f *FS) acquire() {
	f.open++
	if f.open > f.peak {
		f.peak = f.open
	}
}

func (f *FS) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open--
}

type readFile struct {
	fs     *FS
	path   string
	reader *bytes.Reader
	fault  *fault
	read   int64
	closed bool
}

func (r *readFile) Read(p []byte) (int, error) {
	if r.closed {
		return 0, os.ErrClosed
	}
	if r.fault != nil {
		remaining := r.fault.after - r.read
		if remaining <= 0 {
			return 0, r.fault.err
		}
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}
	n, err := r.reader.Read(p)
	r.read += int64(n)
	return n, err
}

func (r *readFile) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.fs.release()
	return nil
}

type writeFile struct {
	fs      *FS
	node    *node
	fault   *fault
	written int64
	closed  bool
}

func (w *writeFile) Write(p []byte) (int, error) {
	if w.closed {
		return 0, os.ErrClosed
	}
	if w.fault != nil && w.written+int64(len(p)) > w.fault.after {
		return 0, w.fault.err
	}
	w.fs.mu.Lock()
	w.node.data = append(w.node.data, p...)
	w.fs.mu.Unlock()
	w.written += int64(len(p))
	return len(p), nil
}

func (w *writeFile) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.fs.release()
	return nil
}

type fileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func newFileInfo(name string, n *node) fileInfo {
	if n == nil {
		return fileInfo{name: name}
	}
	if n.dir {
		return fileInfo{name: name, mode: os.ModeDir | 0o755, modTime: n.modTime}
	}
	return fileInfo{name: name, size: int64(len(n.data)), mode: 0o644, modTime: n.modTime}
}

func (f fileInfo) Name() string       { return f.name }
func (f fileInfo) Size() int64        { return f.size }
func (f fileInfo) Mode() os.FileMode  { return f.mode }
func (f fileInfo) ModTime() time.Time { return f.modTime }
func (f fileInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fileInfo) Sys() any           { return nil }

var _ io.ReadCloser = (*readFile)(nil)
