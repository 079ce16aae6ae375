package fat32

import (
	"github.com/novariaos/novariaos-src/internal/blockdev"
	"github.com/novariaos/novariaos-src/internal/klog"
	"github.com/novariaos/novariaos-src/internal/vfs"
)

const Name = "fat32"

// Driver implements vfs.FSOps, overriding only Mount/Unmount/Stat/Readdir:
// open/read/write/seek are outside this core's specification, so they fall
// through UnsupportedFSOps to ENOSYS.
type Driver struct {
	vfs.UnsupportedFSOps
	registry *blockdev.Registry
}

// Register installs the driver into the VFS's filesystem table, the Go
// counterpart of fat32_init's vfs_register_filesystem call.
func Register(v *vfs.VFS, registry *blockdev.Registry) vfs.Errno {
	errno := v.RegisterFilesystem(Name, &Driver{registry: registry}, 0)
	if errno == vfs.OK {
		klog.Info("fat32: filesystem driver registered")
	}
	return errno
}

func (d *Driver) Mount(mnt *vfs.Mount, device string, data interface{}) vfs.Errno {
	klog.Debug("fat32: mounting on device %s", device)

	dev, ok := d.registry.Find(device)
	if !ok {
		klog.Error("fat32: block device '%s' not found", device)
		return vfs.ENODEV
	}

	sector := make([]byte, dev.BlockSize)
	if errno := dev.Ops.ReadBlocks(0, 1, sector); errno != vfs.OK {
		klog.Error("fat32: failed to read boot sector: %v", errno)
		return errno
	}

	bpb, err := ParseBPB(sector)
	if err != nil {
		klog.Error("fat32: %v", err)
		return vfs.EINVAL
	}
	if bpb.FSType != "FAT32" {
		klog.Warn("fat32: filesystem type is not 'FAT32': %q", bpb.FSType)
	}

	fs, err := newFS(dev.Ops, bpb)
	if err != nil {
		klog.Error("fat32: %v", err)
		return vfs.EINVAL
	}

	klog.Info("fat32: mounted successfully (label=%q clusters=%d root_cluster=%d)",
		bpb.VolumeLabel, fs.TotalClusters, fs.RootCluster)

	mnt.FSPrivate = fs
	return vfs.OK
}

func (d *Driver) Unmount(mnt *vfs.Mount) vfs.Errno {
	if mnt.FSPrivate == nil {
		return vfs.EINVAL
	}
	mnt.FSPrivate = nil
	klog.Info("fat32: filesystem unmounted")
	return vfs.OK
}

func (d *Driver) Stat(mnt *vfs.Mount, path string) (vfs.Stat, vfs.Errno) {
	fs, ok := mnt.FSPrivate.(*FS)
	if !ok {
		return vfs.Stat{}, vfs.EINVAL
	}

	entry, errno := fs.Resolve(path)
	if errno != vfs.OK {
		return vfs.Stat{}, errno
	}

	typ := vfs.TypeFile
	if entry.IsDir {
		typ = vfs.TypeDir
	}
	return vfs.Stat{Size: int64(entry.FileSize), Type: typ}, vfs.OK
}

func (d *Driver) Readdir(mnt *vfs.Mount, path string) ([]vfs.Dirent, vfs.Errno) {
	fs, ok := mnt.FSPrivate.(*FS)
	if !ok {
		return nil, vfs.EINVAL
	}

	entry, errno := fs.Resolve(path)
	if errno != vfs.OK {
		return nil, errno
	}
	if !entry.IsDir {
		return nil, vfs.ENOTDIR
	}

	dirEntries, errno := fs.ReadDirectory(entry.FirstCluster)
	if errno != vfs.OK {
		return nil, errno
	}

	out := make([]vfs.Dirent, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		typ := vfs.TypeFile
		if e.IsDir {
			typ = vfs.TypeDir
		}
		out = append(out, vfs.Dirent{Name: e.Name, Type: typ})
	}
	return out, vfs.OK
}
