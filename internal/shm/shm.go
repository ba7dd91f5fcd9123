package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// DefaultDir is where POSIX shm_open places its objects on Linux.
const DefaultDir = "/dev/shm"

var ErrInvalidSize = errors.New("size must be positive")

// AllocationError is returned when a region cannot be created, resized or mapped.
type AllocationError struct {
	Op   string
	Size int
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("shm: failed to %s region of %d bytes: %v", e.Op, e.Size, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// Allocator creates unlinked shared memory files.
type Allocator struct {
	// Dir is the directory the region is briefly named in before being unlinked.
	Dir string
	// Name generates the temporary name, it must be collision resistant.
	Name func() string
}

func NewAllocator() Allocator {
	return Allocator{
		Dir:  DefaultDir,
		Name: RandomName,
	}
}

func RandomName() string {
	return "wl_shm-" + uuid.NewString()
}

// Allocate returns a file of exactly size bytes that is only reachable through
// the returned handle. Closing it is the caller's responsibility.
func (a Allocator) Allocate(size int) (*os.File, error) {
	if size <= 0 {
		return nil, &AllocationError{Op: "allocate", Size: size, Err: ErrInvalidSize}
	}

	dir := a.Dir
	if dir == "" {
		dir = DefaultDir
	}
	nameFn := a.Name
	if nameFn == nil {
		nameFn = RandomName
	}
	name := nameFn()
	path := filepath.Join(dir, name)

	// Create the file with exclusive access
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0600)
	if err != nil {
		return nil, &AllocationError{Op: "create", Size: size, Err: err}
	}

	if err := unix.Unlink(path); err != nil {
		unix.Close(fd)
		return nil, &AllocationError{Op: "unlink", Size: size, Err: err}
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, &AllocationError{Op: "truncate", Size: size, Err: err}
	}

	return os.NewFile(uintptr(fd), name), nil
}

// Map maps size bytes of f for shared read/write access.
func Map(f *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, &AllocationError{Op: "mmap", Size: size, Err: err}
	}
	return data, nil
}

// MapReadOnly maps size bytes of fd privately for reading.
func MapReadOnly(fd int, size int) ([]byte, error) {
	if size <= 0 {
		return nil, &AllocationError{Op: "mmap", Size: size, Err: ErrInvalidSize}
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, &AllocationError{Op: "mmap", Size: size, Err: err}
	}
	return data, nil
}

func Unmap(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
