package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// IntegrityResult is the outcome of VerifyIntegrity. Passed is false when
// any high-security file failed.
type IntegrityResult struct {
	Passed   bool
	Warnings []string
	Errors   []string
}

// VerifyIntegrity compares files against the directory's .checksums. A
// problem with tokens.yaml is an error; a problem with kpmd.yaml is a
// warning. An unlocked directory is only a warning while it holds no
// high-security file.
func VerifyIntegrity(files *ConfigFiles) (*IntegrityResult, error) {
	res := &IntegrityResult{Passed: true}

	sums, err := ReadChecksums(files.Root)
	if errors.Is(err, ErrNoChecksums) {
		at := filepath.Join(files.Root, ChecksumsFile)
		if hs := files.HighSecurityFiles(); len(hs) > 0 {
			res.Passed = false
			res.Errors = append(res.Errors, fmt.Sprintf("%s holds credentials but %s is missing; run 'kpmd config lock'", filepath.Base(hs[0]), at))
		} else {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s is missing; run 'kpmd config lock' to enable integrity checks", at))
		}
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	for _, path := range files.AllFiles() {
		err := sums.Verify(path)
		if err == nil {
			continue
		}
		if files.FileTier(path) == TierHighSecurity {
			res.Passed = false
			res.Errors = append(res.Errors, err.Error())
		} else {
			res.Warnings = append(res.Warnings, err.Error())
		}
	}
	return res, nil
}
