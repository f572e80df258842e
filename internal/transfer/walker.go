package transfer

import (
	"context"
	"io"
	"os"
	stdpath "path"
	"time"

	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
)

// Entry is a snapshot of one directory listing row.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

func entryFromInfo(info os.FileInfo) Entry {
	return Entry{
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
}

// Step is one directory visited by a Walker.
type Step struct {
	Path  string
	Dirs  []Entry
	Files []Entry
}

// Walker enumerates a remote subtree in pre-order, listing one directory per call to
// Next. Pending directories live on an explicit stack, so depth is bounded only by memory.
type Walker struct {
	client gatesftp.Client
	stack  []string
	err    error
}

// NewWalker prepares a walk rooted at root. No remote call is made until Next.
func NewWalker(client gatesftp.Client, root string) *Walker {
	return &Walker{client: client, stack: []string{CleanPath(root)}}
}

// Next lists the next directory. It returns io.EOF once the subtree is exhausted;
// any other error is sticky.
func (w *Walker) Next(ctx context.Context) (Step, error) {
	if w.err != nil {
		return Step{}, w.err
	}
	if len(w.stack) == 0 {
		w.err = io.EOF
		return Step{}, w.err
	}
	if err := ctx.Err(); err != nil {
		w.err = err
		return Step{}, err
	}

	current := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]

	infos, err := w.client.ReadDir(current)
	if err != nil {
		w.err = Classify("readdir", current, err)
		w.stack = nil
		return Step{}, w.err
	}

	step := Step{Path: current}
	for _, info := range infos {
		entry := entryFromInfo(info)
		if entry.IsDir {
			step.Dirs = append(step.Dirs, entry)
			continue
		}
		step.Files = append(step.Files, entry)
	}

	// Reverse push keeps listing order when popping.
	for i := len(step.Dirs) - 1; i >= 0; i-- {
		w.stack = append(w.stack, JoinPath(current, step.Dirs[i].Name))
	}
	return step, nil
}

// Walk calls fn for every step until the subtree is exhausted or fn fails.
func (w *Walker) Walk(ctx context.Context, fn func(Step) error) error {
	for {
		step, err := w.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(step); err != nil {
			w.err = err
			w.stack = nil
			return err
		}
	}
}

// CleanPath normalises a remote path. Empty input means the session's working directory.
func CleanPath(p string) string {
	if p == "" {
		return "."
	}
	return stdpath.Clean(p)
}

// JoinPath appends name to dir using forward slashes.
func JoinPath(dir, name string) string {
	return stdpath.Join(dir, name)
}
