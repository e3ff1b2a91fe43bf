/*
 *
 * Copyright 2026 the mlos-shm authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

//go:build linux

package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func generateSegmentPath(name string) string {
	if isDevShmAvailable() {
		return filepath.Join("/dev/shm", "mlos."+name)
	}
	return filepath.Join(os.TempDir(), "mlos."+name)
}

func isDevShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	return err == nil && info.IsDir()
}

func mmapFd(fd int, size int) ([]byte, error) {
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap failed: %w", err)
	}
	return mem, nil
}

// CreateNew fails with ErrAlreadyExists if a region with this name
// already exists on disk.
func CreateNew(name string, size uint64) (*SharedMemoryMap, error) {
	path := generateSegmentPath(name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer file.Close()

	if err := file.Truncate(int64(size)); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	mem, err := mmapFd(int(file.Fd()), int(size))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	return &SharedMemoryMap{Mem: mem, Path: path, fd: -1}, nil
}

// CreateOrOpen creates if absent, opens otherwise. created reports which
// case occurred; size is ignored when opening an existing mapping.
func CreateOrOpen(name string, size uint64) (m *SharedMemoryMap, created bool, err error) {
	m, err = CreateNew(name, size)
	if err == nil {
		return m, true, nil
	}
	if err != ErrAlreadyExists {
		return nil, false, err
	}
	m, err = OpenExisting(name)
	return m, false, err
}

// OpenExisting fails with ErrNotFound if absent; the mapped size is
// recovered from the OS via fstat rather than supplied by the caller.
func OpenExisting(name string) (*SharedMemoryMap, error) {
	path := generateSegmentPath(name)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer file.Close()

	var st unix.Stat_t
	if err := unix.Fstat(int(file.Fd()), &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	mem, err := mmapFd(int(file.Fd()), int(st.Size))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	return &SharedMemoryMap{Mem: mem, Path: path, fd: -1}, nil
}

// CreateAnonymous creates a memory object with no filesystem name,
// suitable only for handing its descriptor to another process via
// FdExchange. id is used purely as a debugging label (memfd_create's
// name), not a lookup key.
func CreateAnonymous(id string, size uint64) (*SharedMemoryMap, error) {
	fd, err := unix.MemfdCreate("mlos."+id, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	mem, err := mmapFd(fd, int(size))
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return &SharedMemoryMap{Mem: mem, Path: "", fd: fd}, nil
}

// OpenFromDescriptor wraps an externally delivered descriptor (received
// over FdExchange), recovering its size from fstat.
func OpenFromDescriptor(fd int) (*SharedMemoryMap, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	mem, err := mmapFd(fd, int(st.Size))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return &SharedMemoryMap{Mem: mem, Path: "", fd: fd}, nil
}

// Close unmaps and closes any descriptor this map holds; if cleanupOnClose
// is set, it also unlinks the backing name (named regions only).
func (m *SharedMemoryMap) Close(cleanupOnClose bool) error {
	if len(m.Mem) == 0 {
		return nil
	}
	err := unix.Munmap(m.Mem)
	m.Mem = nil
	if m.fd >= 0 {
		unix.Close(m.fd)
	}
	if cleanupOnClose && m.Path != "" {
		os.Remove(m.Path)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}
