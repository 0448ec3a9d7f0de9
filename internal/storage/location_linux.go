//go:build linux

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// remoteMagic lists statfs magic numbers whose locking is unreliable.
var remoteMagic = map[uint32]string{
	unix.NFS_SUPER_MAGIC:  "nfs",
	unix.CIFS_SUPER_MAGIC: "cifs",
	unix.SMB_SUPER_MAGIC:  "smbfs",
	unix.SMB2_SUPER_MAGIC: "smb2",
	unix.V9FS_MAGIC:       "9p",
	unix.FUSE_SUPER_MAGIC: "fuse",
}

func probeFilesystem(path string) (fsKind, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return fsKind{}, fmt.Errorf("statfs: %w", err)
	}
	if name, ok := remoteMagic[uint32(st.Type)]; ok {
		return fsKind{Name: name, Remote: true}, nil
	}
	return fsKind{Name: fmt.Sprintf("fs(0x%x)", uint64(st.Type))}, nil
}
