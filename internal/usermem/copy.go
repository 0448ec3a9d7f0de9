package usermem

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// AccessOK reports whether [addr, addr+n) lies below the task's address
// limit. It is a range check only, like access_ok: a range that passes can
// still fault on copy if it is unmapped or lacks permission.
func AccessOK(t *Task, addr Addr, n int) bool {
	if t == nil || t.Space == nil || n < 0 {
		return false
	}
	end := addr + Addr(n)
	if end < addr {
		return false
	}
	return end <= t.addressLimit()
}

// CopyInBytes fills dst from the task's memory at src.
func CopyInBytes(t *Task, dst []byte, src Addr) (int, error) {
	if !AccessOK(t, src, len(dst)) {
		return 0, unix.EFAULT
	}
	s := t.Space
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.rangeMappedLocked(src, len(dst), Read) {
		return 0, unix.EFAULT
	}
	s.copyInLocked(src, dst)
	return len(dst), nil
}

// CopyInString copies a NUL-terminated string from src into dst. At most
// len(dst) bytes are copied; the returned length excludes the terminator and
// equals len(dst) when no terminator was found within the bound.
//
// A zero src or empty dst is EINVAL. A range outside the task's limit, or an
// unreadable byte before the terminator, is EFAULT.
func CopyInString(t *Task, dst []byte, src Addr) (int, error) {
	if src == 0 || len(dst) == 0 {
		return 0, unix.EINVAL
	}
	if !AccessOK(t, src, len(dst)) {
		return 0, unix.EFAULT
	}
	s := t.Space
	s.mu.RLock()
	defer s.mu.RUnlock()

	for n := 0; n < len(dst); {
		cur := src + Addr(n)
		v := s.findLocked(cur)
		if v == nil || v.perms&Read == 0 {
			return 0, unix.EFAULT
		}
		chunk := v.data[cur-v.start:]
		for _, b := range chunk {
			if n == len(dst) {
				break
			}
			dst[n] = b
			if b == 0 {
				return n, nil
			}
			n++
		}
	}
	return len(dst), nil
}

// CopyOutBytes writes b to the task's memory at dst. The whole range is
// checked before any byte is written.
func CopyOutBytes(t *Task, dst Addr, b []byte) error {
	return CopyOutPadded(t, dst, b, len(b))
}

// CopyOutPadded writes exactly n bytes at dst: b (truncated to n) followed by
// zero fill.
func CopyOutPadded(t *Task, dst Addr, b []byte, n int) error {
	if n < 0 {
		return unix.EINVAL
	}
	if !AccessOK(t, dst, n) {
		return unix.EFAULT
	}
	if len(b) > n {
		b = b[:n]
	}
	s := t.Space
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.rangeMappedLocked(dst, n, Write) {
		return unix.EFAULT
	}
	s.copyOutLocked(dst, b)
	if pad := n - len(b); pad > 0 {
		s.zeroLocked(dst+Addr(len(b)), pad)
	}
	return nil
}

// CopyOutResult writes a 32-bit result code to dst.
func CopyOutResult(t *Task, dst Addr, v int32) error {
	if dst == 0 {
		return unix.EINVAL
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return CopyOutBytes(t, dst, buf[:])
}

// zeroLocked assumes the range was validated by rangeMappedLocked.
func (s *Space) zeroLocked(addr Addr, n int) {
	for done := 0; done < n; {
		cur := addr + Addr(done)
		v := s.findLocked(cur)
		seg := v.data[cur-v.start:]
		if len(seg) > n-done {
			seg = seg[:n-done]
		}
		clear(seg)
		done += len(seg)
	}
}
