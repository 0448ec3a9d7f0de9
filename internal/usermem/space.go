package usermem

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// Addr is an address in a caller's address space. It is an opaque value to
// the dispatcher: it can only be resolved through the copy functions.
type Addr uint64

// AccessType is the set of permitted accesses on a mapping.
type AccessType uint8

const (
	Read AccessType = 1 << iota
	Write

	ReadWrite = Read | Write
)

func (a AccessType) String() string {
	switch a {
	case Read:
		return "r-"
	case Write:
		return "-w"
	case ReadWrite:
		return "rw"
	default:
		return "--"
	}
}

const (
	// PageSize is the mapping granularity used by Alloc.
	PageSize = 4096

	// allocBase is where Alloc starts placing mappings. The page at zero is
	// never mapped so a NULL address always faults.
	allocBase Addr = 0x10000
)

type vma struct {
	start Addr
	data  []byte
	perms AccessType
}

func (v *vma) end() Addr { return v.start + Addr(len(v.data)) }

// Space is a caller address space: a sorted set of non-overlapping mappings.
//
// All checked accesses from the privileged side go through the functions in
// copy.go, which hold the space lock across both the permission check and the
// copy. Mapping changes take the write lock, so a range cannot be unmapped or
// reprotected between check and use.
type Space struct {
	mu   sync.RWMutex
	vmas []*vma
	brk  Addr
}

// NewSpace returns an empty address space.
func NewSpace() *Space {
	return &Space{brk: allocBase}
}

// Map creates a zero-filled mapping of size bytes at addr.
func (s *Space) Map(addr Addr, size int, perms AccessType) error {
	if addr == 0 || size <= 0 {
		return fmt.Errorf("map %#x+%d: %w", addr, size, unix.EINVAL)
	}
	end := addr + Addr(size)
	if end < addr {
		return fmt.Errorf("map %#x+%d: %w", addr, size, unix.EOVERFLOW)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapLocked(addr, size, perms)
}

func (s *Space) mapLocked(addr Addr, size int, perms AccessType) error {
	end := addr + Addr(size)
	i := s.searchLocked(addr)
	if i > 0 && s.vmas[i-1].end() > addr {
		return fmt.Errorf("map %#x+%d: overlaps %#x: %w", addr, size, s.vmas[i-1].start, unix.EEXIST)
	}
	if i < len(s.vmas) && s.vmas[i].start < end {
		return fmt.Errorf("map %#x+%d: overlaps %#x: %w", addr, size, s.vmas[i].start, unix.EEXIST)
	}

	v := &vma{start: addr, data: make([]byte, size), perms: perms}
	s.vmas = append(s.vmas, nil)
	copy(s.vmas[i+1:], s.vmas[i:])
	s.vmas[i] = v
	return nil
}

// Alloc maps size bytes at the next free page-aligned address, leaving one
// unmapped guard page after the previous allocation.
func (s *Space) Alloc(size int, perms AccessType) (Addr, error) {
	if size <= 0 {
		return 0, fmt.Errorf("alloc %d bytes: %w", size, unix.EINVAL)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := pageRoundUp(s.brk) + PageSize
	for _, v := range s.vmas {
		if v.end()+PageSize <= addr || v.start >= addr+Addr(size)+PageSize {
			continue
		}
		addr = pageRoundUp(v.end()) + PageSize
	}
	if err := s.mapLocked(addr, size, perms); err != nil {
		return 0, err
	}
	s.brk = addr + Addr(size)
	return addr, nil
}

// AllocString maps a read-write copy of str followed by a NUL terminator.
func (s *Space) AllocString(str string) (Addr, error) {
	addr, err := s.Alloc(len(str)+1, ReadWrite)
	if err != nil {
		return 0, err
	}
	if err := s.WriteBytes(addr, append([]byte(str), 0)); err != nil {
		return 0, err
	}
	return addr, nil
}

// Unmap removes the mapping that starts at addr.
func (s *Space) Unmap(addr Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.searchLocked(addr)
	if i >= len(s.vmas) || s.vmas[i].start != addr {
		return fmt.Errorf("unmap %#x: %w", addr, unix.EINVAL)
	}
	s.vmas = append(s.vmas[:i], s.vmas[i+1:]...)
	return nil
}

// Protect changes the permissions of the mapping that starts at addr.
func (s *Space) Protect(addr Addr, perms AccessType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.searchLocked(addr)
	if i >= len(s.vmas) || s.vmas[i].start != addr {
		return fmt.Errorf("protect %#x: %w", addr, unix.EINVAL)
	}
	s.vmas[i].perms = perms
	return nil
}

// WriteBytes stores b at addr on behalf of the space's owner. Owner access
// ignores mapping permissions but still requires the range to be mapped.
func (s *Space) WriteBytes(addr Addr, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.rangeMappedLocked(addr, len(b), 0) {
		return fmt.Errorf("write %#x+%d: %w", addr, len(b), unix.EFAULT)
	}
	s.copyOutLocked(addr, b)
	return nil
}

// ReadBytes loads n bytes at addr on behalf of the space's owner.
func (s *Space) ReadBytes(addr Addr, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("read %#x+%d: %w", addr, n, unix.EINVAL)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.rangeMappedLocked(addr, n, 0) {
		return nil, fmt.Errorf("read %#x+%d: %w", addr, n, unix.EFAULT)
	}
	out := make([]byte, n)
	s.copyInLocked(addr, out)
	return out, nil
}

// searchLocked returns the index of the first mapping whose start is >= addr.
func (s *Space) searchLocked(addr Addr) int {
	return sort.Search(len(s.vmas), func(i int) bool { return s.vmas[i].start >= addr })
}

// findLocked returns the mapping containing addr, or nil.
func (s *Space) findLocked(addr Addr) *vma {
	i := sort.Search(len(s.vmas), func(i int) bool { return s.vmas[i].end() > addr })
	if i < len(s.vmas) && s.vmas[i].start <= addr {
		return s.vmas[i]
	}
	return nil
}

// rangeMappedLocked reports whether [addr, addr+n) is fully mapped with at
// least the perms requested.
func (s *Space) rangeMappedLocked(addr Addr, n int, perms AccessType) bool {
	if n == 0 {
		return true
	}
	end := addr + Addr(n)
	if end < addr {
		return false
	}
	for cur := addr; cur < end; {
		v := s.findLocked(cur)
		if v == nil || v.perms&perms != perms {
			return false
		}
		cur = v.end()
	}
	return true
}

// copyInLocked assumes the range was validated by rangeMappedLocked.
func (s *Space) copyInLocked(addr Addr, dst []byte) {
	for done := 0; done < len(dst); {
		cur := addr + Addr(done)
		v := s.findLocked(cur)
		done += copy(dst[done:], v.data[cur-v.start:])
	}
}

// copyOutLocked assumes the range was validated by rangeMappedLocked.
func (s *Space) copyOutLocked(addr Addr, src []byte) {
	for done := 0; done < len(src); {
		cur := addr + Addr(done)
		v := s.findLocked(cur)
		done += copy(v.data[cur-v.start:], src[done:])
	}
}

func pageRoundUp(a Addr) Addr {
	return (a + PageSize - 1) &^ (PageSize - 1)
}
