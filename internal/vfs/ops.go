package vfs

import "strings"

const (
	SeekSet = iota
	SeekCur
	SeekEnd
)

const (
	OpenRead = 1 << iota
	OpenWrite
	OpenCreat
)

func (v *VFS) Mkdir(path string) Errno {
	if len(path) >= MaxFilename {
		return EINVAL
	}
	v.lock.Acquire()
	defer v.lock.Release()

	path = normalize(path)
	if f, _ := v.findLegacyByName(path); f != nil {
		if f.typ == TypeDir {
			return OK
		}
		return EEXIST
	}
	for i := range v.files {
		if !v.files[i].used {
			v.files[i] = legacyFile{used: true, name: path, typ: TypeDir}
			return OK
		}
	}
	return ENOSPC
}

func (v *VFS) Create(path string, data []byte) Errno {
	if len(path) >= MaxFilename || len(data) > MaxFileSize {
		return EINVAL
	}
	v.lock.Acquire()
	defer v.lock.Release()

	path = normalize(path)
	if f, _ := v.findLegacyByName(path); f != nil {
		return EEXIST
	}
	for i := range v.files {
		if !v.files[i].used {
			buf := make([]byte, len(data), MaxFileSize)
			copy(buf, data)
			v.files[i] = legacyFile{used: true, name: path, typ: TypeFile, size: len(data), data: buf}
			return OK
		}
	}
	return ENOSPC
}

func (v *VFS) Delete(path string) Errno {
	v.lock.Acquire()
	defer v.lock.Release()
	path = normalize(path)
	f, idx := v.findLegacyByName(path)
	if f == nil {
		return ENOENT
	}
	if f.typ == TypeDir {
		return EISDIR
	}
	v.files[idx] = legacyFile{}
	return OK
}

func (v *VFS) Rmdir(path string) Errno {
	v.lock.Acquire()
	defer v.lock.Release()
	path = normalize(path)
	f, idx := v.findLegacyByName(path)
	if f == nil {
		return ENOENT
	}
	if f.typ != TypeDir {
		return ENOTDIR
	}
	prefix := path + "/"
	if path == "/" {
		prefix = "/"
	}
	for i := range v.files {
		if i == idx || !v.files[i].used {
			continue
		}
		if strings.HasPrefix(v.files[i].name, prefix) {
			return ENOTEMPTY
		}
	}
	v.files[idx] = legacyFile{}
	return OK
}

// PseudoRegister installs a device-typed legacy slot, the Go counterpart of
// vfs_pseudo_register.
func (v *VFS) PseudoRegister(path string, read ReadFunc, write WriteFunc, seek SeekFunc, ioctl IoctlFunc, devData interface{}) Errno {
	if len(path) >= MaxFilename {
		return EINVAL
	}
	v.lock.Acquire()
	defer v.lock.Release()
	for i := range v.files {
		if !v.files[i].used {
			v.files[i] = legacyFile{
				used: true, name: path, typ: TypeDevice,
				ops:     devOps{read: read, write: write, seek: seek, ioctl: ioctl},
				devData: devData,
			}
			return OK
		}
	}
	return ENOSPC
}

// PseudoRegisterWithFd installs (or reuses) a device slot and binds it to a
// specific descriptor, mirroring vfs_pseudo_register_with_fd's fixed-fd
// reservation for /dev/null, /dev/zero, etc.
func (v *VFS) PseudoRegisterWithFd(path string, fixedFD int, read ReadFunc, write WriteFunc, seek SeekFunc, ioctl IoctlFunc, devData interface{}) Errno {
	if len(path) >= MaxFilename {
		return EINVAL
	}
	v.lock.Acquire()
	defer v.lock.Release()

	if v.getHandle(fixedFD) != nil {
		return EEXIST
	}

	file, _ := v.findLegacyByName(path)
	if file == nil {
		var slot *legacyFile
		for i := range v.files {
			if !v.files[i].used {
				slot = &v.files[i]
				break
			}
		}
		if slot == nil {
			return ENOSPC
		}
		*slot = legacyFile{
			used: true, name: path, typ: TypeDevice,
			ops:     devOps{read: read, write: write, seek: seek, ioctl: ioctl},
			devData: devData,
		}
		file = slot
	}

	var h *handle
	for i := range v.handles {
		if !v.handles[i].used {
			h = &v.handles[i]
			break
		}
	}
	if h == nil {
		return EMFILE
	}

	flags := FlagRead | FlagWrite
	switch path {
	case "/dev/stdout", "/dev/stderr":
		flags = FlagWrite
	case "/dev/stdin":
		flags = FlagRead
	}
	*h = handle{used: true, fd: fixedFD, file: file, flags: flags}
	return OK
}

// LinkStdFd rebinds one of fds 0/1/2 to a device slot's file.
func (v *VFS) LinkStdFd(stdFD int, devPath string) Errno {
	v.lock.Acquire()
	defer v.lock.Release()
	if stdFD < 0 || stdFD > 2 {
		return EINVAL
	}
	file, _ := v.findLegacyByName(devPath)
	if file == nil {
		return ENOENT
	}
	v.handles[stdFD].file = file
	return OK
}

// Open resolves through the mount table first, then the legacy table.
func (v *VFS) Open(path string, flags int) (int, Errno) {
	v.lock.Acquire()
	path = normalize(path)

	if mnt, rel, ok := v.mountTree.longestPrefix(path); ok && mnt.Ops != nil {
		priv, errno := mnt.Ops.Open(mnt, rel, flags)
		if errno == OK {
			fd := v.allocateFD()
			if fd == -1 {
				v.lock.Release()
				_ = mnt.Ops.Close(mnt, priv)
				return -1, EMFILE
			}
			var fh *fileHandle
			for i := range v.fileHandles {
				if !v.fileHandles[i].used {
					fh = &v.fileHandles[i]
					break
				}
			}
			if fh == nil {
				v.lock.Release()
				_ = mnt.Ops.Close(mnt, priv)
				return -1, EMFILE
			}
			*fh = fileHandle{used: true, fd: fd, mount: mnt, privData: priv, flags: flags}
			mnt.RefCount++
			v.lock.Release()
			return fd, OK
		}
		if errno != ENOSYS {
			v.lock.Release()
			return -1, errno
		}
	}

	file, idx := v.findLegacyByName(path)
	if file == nil {
		if flags&OpenCreat != 0 {
			for i := range v.files {
				if !v.files[i].used {
					v.files[i] = legacyFile{used: true, name: path, typ: TypeFile}
					file = &v.files[i]
					idx = i
					break
				}
			}
			if file == nil {
				v.lock.Release()
				return -1, ENOSPC
			}
		} else {
			v.lock.Release()
			return -1, ENOENT
		}
	}
	_ = idx

	fd := v.allocateFD()
	if fd == -1 {
		v.lock.Release()
		return -1, EMFILE
	}
	var h *handle
	for i := range v.handles {
		if !v.handles[i].used {
			h = &v.handles[i]
			break
		}
	}
	if h == nil {
		v.lock.Release()
		return -1, EMFILE
	}
	hflags := legacyFlagsFromOpen(flags)
	*h = handle{used: true, fd: fd, file: file, flags: hflags}
	v.lock.Release()
	return fd, OK
}

func legacyFlagsFromOpen(flags int) int {
	out := 0
	if flags&OpenRead != 0 {
		out |= FlagRead
	}
	if flags&OpenWrite != 0 {
		out |= FlagWrite
	}
	if out == 0 {
		out = FlagRead | FlagWrite
	}
	return out
}

func (v *VFS) Close(fd int) Errno {
	if fd >= 0 && fd <= 2 {
		return OK
	}
	v.lock.Acquire()
	defer v.lock.Release()

	if fh := v.getFileHandle(fd); fh != nil {
		errno := fh.mount.Ops.Close(fh.mount, fh.privData)
		fh.mount.RefCount--
		*fh = fileHandle{}
		return errno
	}
	for i := range v.handles {
		if v.handles[i].used && v.handles[i].fd == fd {
			v.handles[i] = handle{}
			return OK
		}
	}
	return EBADF
}

func (v *VFS) ReadFd(fd int, buf []byte) (int, Errno) {
	v.lock.Acquire()
	defer v.lock.Release()

	if fh := v.getFileHandle(fd); fh != nil {
		if fh.flags&OpenRead == 0 {
			return 0, EACCES
		}
		n, errno := fh.mount.Ops.Read(fh.mount, fh.privData, buf, fh.position)
		if errno == OK {
			fh.position += int64(n)
		}
		return n, errno
	}

	h := v.getHandle(fd)
	if h == nil {
		return 0, EBADF
	}
	if h.flags&FlagRead == 0 {
		return 0, EACCES
	}
	if h.file != nil && h.file.typ == TypeDevice {
		if h.file.ops.read == nil {
			return 0, ENOSYS
		}
		n, errno := h.file.ops.read(h.file.devData, buf, h.position)
		if errno == OK {
			h.position += int64(n)
		}
		return n, errno
	}
	if h.file == nil {
		return 0, EBADF
	}
	if h.position >= int64(h.file.size) {
		return 0, OK
	}
	n := copy(buf, h.file.data[h.position:h.file.size])
	h.position += int64(n)
	return n, OK
}

func (v *VFS) WriteFd(fd int, buf []byte) (int, Errno) {
	v.lock.Acquire()
	defer v.lock.Release()

	if fh := v.getFileHandle(fd); fh != nil {
		if fh.flags&OpenWrite == 0 {
			return 0, EACCES
		}
		n, errno := fh.mount.Ops.Write(fh.mount, fh.privData, buf, fh.position)
		if errno == OK {
			fh.position += int64(n)
		}
		return n, errno
	}

	h := v.getHandle(fd)
	if h == nil {
		return 0, EBADF
	}
	if h.flags&FlagWrite == 0 {
		return 0, EACCES
	}
	if h.file != nil && h.file.typ == TypeDevice {
		if h.file.ops.write == nil {
			return 0, ENOSYS
		}
		n, errno := h.file.ops.write(h.file.devData, buf, h.position)
		if errno == OK {
			h.position += int64(n)
		}
		return n, errno
	}
	if h.file == nil {
		return 0, EBADF
	}
	end := h.position + int64(len(buf))
	if end > MaxFileSize {
		return 0, ENOSPC
	}
	if int(end) > cap(h.file.data) {
		grown := make([]byte, end, MaxFileSize)
		copy(grown, h.file.data)
		h.file.data = grown
	} else if int(end) > len(h.file.data) {
		h.file.data = h.file.data[:end]
	}
	n := copy(h.file.data[h.position:end], buf)
	h.position = end
	if int(end) > h.file.size {
		h.file.size = int(end)
	}
	return n, OK
}

func (v *VFS) SeekFd(fd int, offset int64, whence int) (int64, Errno) {
	v.lock.Acquire()
	defer v.lock.Release()

	if fh := v.getFileHandle(fd); fh != nil {
		return fh.mount.Ops.Seek(fh.mount, fh.privData, offset, whence)
	}

	h := v.getHandle(fd)
	if h == nil {
		return 0, EBADF
	}
	if h.file != nil && h.file.typ == TypeDevice && h.file.ops.seek != nil {
		pos, errno := h.file.ops.seek(h.file.devData, offset, whence)
		if errno == OK {
			h.position = pos
		}
		return pos, errno
	}
	if h.file == nil {
		return 0, ESPIPE
	}

	var newPos int64
	switch whence {
	case SeekSet:
		newPos = offset
	case SeekCur:
		newPos = h.position + offset
	case SeekEnd:
		newPos = int64(h.file.size) + offset
		if newPos > int64(h.file.size) {
			return 0, EINVAL
		}
	default:
		return 0, EINVAL
	}
	if newPos < 0 {
		newPos = 0
	}
	h.position = newPos
	return newPos, OK
}

func (v *VFS) IoctlFd(fd int, req int, arg uintptr) (int, Errno) {
	v.lock.Acquire()
	defer v.lock.Release()

	if fh := v.getFileHandle(fd); fh != nil {
		return fh.mount.Ops.Ioctl(fh.mount, fh.privData, req, arg)
	}
	h := v.getHandle(fd)
	if h == nil {
		return 0, EBADF
	}
	if h.file == nil || h.file.ops.ioctl == nil {
		return 0, ENOTTY
	}
	return h.file.ops.ioctl(h.file.devData, req, arg)
}

func (v *VFS) Stat(path string) (Stat, Errno) {
	v.lock.Acquire()
	defer v.lock.Release()
	path = normalize(path)

	if mnt, rel, ok := v.mountTree.longestPrefix(path); ok {
		st, errno := mnt.Ops.Stat(mnt, rel)
		if errno != ENOSYS {
			return st, errno
		}
	}
	f, _ := v.findLegacyByName(path)
	if f == nil {
		return Stat{}, ENOENT
	}
	return Stat{Size: int64(f.size), Type: f.typ}, OK
}

// Readdir falls back to the legacy rule: enumerate slots whose names begin
// with the normalized target path plus "/" and have no further "/"; root
// uses its own "/<basename>" rule.
func (v *VFS) Readdir(path string) ([]Dirent, Errno) {
	v.lock.Acquire()
	defer v.lock.Release()
	path = normalize(path)

	if mnt, rel, ok := v.mountTree.longestPrefix(path); ok {
		entries, errno := mnt.Ops.Readdir(mnt, rel)
		if errno != ENOSYS {
			return entries, errno
		}
	}

	var prefix string
	if path == "/" {
		prefix = "/"
	} else {
		prefix = path + "/"
	}

	var out []Dirent
	for i := range v.files {
		f := &v.files[i]
		if !f.used || !strings.HasPrefix(f.name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(f.name, prefix)
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		out = append(out, Dirent{Name: rest, Type: f.typ})
	}
	return out, OK
}

func (v *VFS) Unlink(path string) Errno {
	path = normalize(path)
	v.lock.Acquire()
	if mnt, rel, ok := v.mountTree.longestPrefix(path); ok {
		errno := mnt.Ops.Unlink(mnt, rel)
		if errno != ENOSYS {
			v.lock.Release()
			return errno
		}
	}
	v.lock.Release()
	return v.Delete(path)
}
