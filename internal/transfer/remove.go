package transfer

import (
	"context"

	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
)

type removeFrame struct {
	path     string
	expanded bool
}

// RemoveAll deletes path. Directories are emptied depth-first with an explicit
// worklist and removed after their children. The first failure stops the removal.
func RemoveAll(ctx context.Context, client gatesftp.Client, path string) error {
	path = CleanPath(path)

	info, err := client.Stat(path)
	if err != nil {
		return Classify("stat", path, err)
	}
	if !info.IsDir() {
		return Classify("remove", path, client.Remove(path))
	}

	stack := []removeFrame{{path: path}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		top := &stack[len(stack)-1]
		if top.expanded {
			if err := client.RemoveDirectory(top.path); err != nil {
				return Classify("rmdir", top.path, err)
			}
			stack = stack[:len(stack)-1]
			continue
		}

		top.expanded = true
		dir := top.path
		infos, err := client.ReadDir(dir)
		if err != nil {
			return Classify("readdir", dir, err)
		}
		for _, child := range infos {
			childPath := JoinPath(dir, child.Name())
			if child.IsDir() {
				stack = append(stack, removeFrame{path: childPath})
				continue
			}
			if err := client.Remove(childPath); err != nil {
				return Classify("remove", childPath, err)
			}
		}
	}
	return nil
}
