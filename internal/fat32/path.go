package fat32

import (
	"strings"

	"github.com/novariaos/novariaos-src/internal/vfs"
)

// Resolve splits path on '/' and descends from the root cluster,
// case-insensitively matching each component, matching the spec's
// "non-directory mid-path yields ENOTDIR, zero first-cluster mid-chain
// yields EINVAL" rules.
func (fs *FS) Resolve(path string) (DirEntry, vfs.Errno) {
	path = strings.Trim(path, "/")
	if path == "" {
		return DirEntry{Name: "/", FirstCluster: fs.RootCluster, IsDir: true}, vfs.OK
	}

	parts := strings.Split(path, "/")
	currentCluster := fs.RootCluster
	var current DirEntry

	for i, part := range parts {
		entries, errno := fs.ReadDirectory(currentCluster)
		if errno != vfs.OK {
			return DirEntry{}, errno
		}

		found := false
		for _, e := range entries {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			if strings.EqualFold(e.Name, part) {
				current = e
				found = true
				break
			}
		}
		if !found {
			return DirEntry{}, vfs.ENOENT
		}

		if i < len(parts)-1 {
			if !current.IsDir {
				return DirEntry{}, vfs.ENOTDIR
			}
			if current.FirstCluster == 0 {
				return DirEntry{}, vfs.EINVAL
			}
			currentCluster = current.FirstCluster
		}
	}
	return current, vfs.OK
}
