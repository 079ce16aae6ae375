package vfs

import (
	"strings"

	"github.com/google/uuid"
	iradix "github.com/hashicorp/go-immutable-radix"
)

// mountIndex backs find_mount's longest-prefix match with an immutable
// radix tree keyed by mount point, replacing a hand-rolled linear prefix
// scan with the structure built exactly for this lookup.
type mountIndex struct {
	tree *iradix.Tree
}

func newMountIndex() *mountIndex {
	return &mountIndex{tree: iradix.New()}
}

func (idx *mountIndex) insert(mountPoint string, m *Mount) {
	tree, _, _ := idx.tree.Insert([]byte(mountPoint), m)
	idx.tree = tree
}

func (idx *mountIndex) remove(mountPoint string) {
	tree, _, _ := idx.tree.Delete([]byte(mountPoint))
	idx.tree = tree
}

// longestPrefix returns the mount whose mount point is the longest prefix
// of path that lands on a path boundary: the next character after the
// prefix must be '/' or end-of-string, or the prefix is "/" itself.
func (idx *mountIndex) longestPrefix(path string) (*Mount, string, bool) {
	key, val, ok := idx.tree.Root().LongestPrefix([]byte(path))
	for ok {
		prefix := string(key)
		if boundaryOK(prefix, path) {
			rel := strings.TrimPrefix(path, prefix)
			rel = strings.TrimPrefix(rel, "/")
			if rel == "" {
				rel = "/"
			}
			return val.(*Mount), rel, true
		}
		// The radix hit landed mid-segment (e.g. "/devfoo" under mount
		// "/dev"); fall back to scanning for a shorter real boundary.
		shorter := parentMountPoint(prefix)
		if shorter == "" {
			return nil, "", false
		}
		key, val, ok = idx.tree.Root().LongestPrefix([]byte(shorter))
	}
	return nil, "", false
}

func boundaryOK(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	if len(path) == len(prefix) {
		return true
	}
	return path[len(prefix)] == '/'
}

// parentMountPoint trims prefix back to its last '/' so the fallback scan
// in longestPrefix can retry against a strictly shorter candidate.
func parentMountPoint(prefix string) string {
	idx := strings.LastIndex(prefix, "/")
	if idx <= 0 {
		if idx == 0 && len(prefix) > 1 {
			return "/"
		}
		return ""
	}
	return prefix[:idx]
}

// RegisterFilesystem adds a driver to the driver table.
func (v *VFS) RegisterFilesystem(name string, ops FSOps, flags int) Errno {
	v.lock.Acquire()
	defer v.lock.Release()

	for i := range v.drivers {
		if v.drivers[i].registered && v.drivers[i].name == name {
			return EEXIST
		}
	}
	for i := range v.drivers {
		if !v.drivers[i].registered {
			v.drivers[i] = driverEntry{registered: true, name: name, ops: ops, flags: flags}
			return OK
		}
	}
	return ENOSPC
}

func (v *VFS) UnregisterFilesystem(name string) Errno {
	v.lock.Acquire()
	defer v.lock.Release()
	for i := range v.drivers {
		if v.drivers[i].registered && v.drivers[i].name == name {
			v.drivers[i] = driverEntry{}
			return OK
		}
	}
	return ENOENT
}

func (v *VFS) findDriver(name string) (*driverEntry, Errno) {
	for i := range v.drivers {
		if v.drivers[i].registered && v.drivers[i].name == name {
			return &v.drivers[i], OK
		}
	}
	return nil, ENOENT
}

// MountFS mounts fsName at mountPoint, mirroring mount_fs.
func (v *VFS) MountFS(fsName, mountPoint, device string, flags int, data interface{}) Errno {
	v.lock.Acquire()
	defer v.lock.Release()

	drv, errno := v.findDriver(fsName)
	if errno != OK {
		return errno
	}

	var free *Mount
	for i := range v.mounts {
		if !v.mounts[i].Mounted {
			free = &v.mounts[i]
			break
		}
	}
	if free == nil {
		return ENOSPC
	}

	*free = Mount{
		ID:         uuid.New(),
		Mounted:    true,
		MountPoint: normalize(mountPoint),
		FSName:     fsName,
		Device:     device,
		Ops:        drv.ops,
		RefCount:   0,
	}
	if errno := drv.ops.Mount(free, device, data); errno != OK {
		*free = Mount{}
		return errno
	}

	v.mountTree.insert(free.MountPoint, free)
	return OK
}

// Unmount refuses while RefCount > 0, matching the spec's EBUSY gate.
func (v *VFS) Unmount(mountPoint string) Errno {
	v.lock.Acquire()
	defer v.lock.Release()

	mountPoint = normalize(mountPoint)
	for i := range v.mounts {
		m := &v.mounts[i]
		if m.Mounted && m.MountPoint == mountPoint {
			if m.RefCount > 0 {
				return EBUSY
			}
			if errno := m.Ops.Unmount(m); errno != OK {
				return errno
			}
			v.mountTree.remove(mountPoint)
			*m = Mount{}
			return OK
		}
	}
	return ENOENT
}

// FindMount is the public counterpart of find_mount.
func (v *VFS) FindMount(path string) (*Mount, string, bool) {
	v.lock.Acquire()
	defer v.lock.Release()
	return v.mountTree.longestPrefix(normalize(path))
}
