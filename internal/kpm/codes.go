package kpm

import (
	"fmt"
	"strings"
)

// ControlCode selects the command a dispatch performs.
type ControlCode uint64

const (
	CodeLoad ControlCode = 28 + iota
	CodeUnload
	CodeNum
	CodeList
	CodeInfo
	CodeControl
	CodeVersion
)

// The control-code range registered for this subsystem. The top of the
// range is reserved: it passes IsControlCode but has no handler.
const (
	CodeMin ControlCode = CodeLoad
	CodeMax ControlCode = 35
)

// Staging buffer capacities.
const (
	PathLen       = 256
	NameLen       = 32
	ArgsLen       = 1024
	BufferLen     = 256
	ListBufferLen = 1024
)

// defaultResult is what a handler reports when its hook leaves the result
// untouched.
const defaultResult int32 = -1

var codeNames = map[ControlCode]string{
	CodeLoad:    "load",
	CodeUnload:  "unload",
	CodeNum:     "num",
	CodeList:    "list",
	CodeInfo:    "info",
	CodeControl: "control",
	CodeVersion: "version",
}

// IsControlCode reports whether code belongs to this subsystem's range.
func IsControlCode(code uint64) bool {
	return ControlCode(code) >= CodeMin && ControlCode(code) <= CodeMax
}

func (c ControlCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint64(c))
}

// ParseCode resolves a command name ("load", "LIST", ...) to its control code.
func ParseCode(name string) (ControlCode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for code, n := range codeNames {
		if n == name {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown kpm command %q", name)
}

// Mutating reports whether the command changes backend state.
func (c ControlCode) Mutating() bool {
	switch c {
	case CodeLoad, CodeUnload, CodeControl:
		return true
	}
	return false
}
