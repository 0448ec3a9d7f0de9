// Package hook is the hook point registry: seven fixed-signature slots that a
// loader backend attaches to after the dispatcher is running.
//
// Every slot receives data already staged by the dispatcher (strings and
// privileged buffers, never caller addresses) plus an output parameter.
// The default implementation of every slot logs the call and returns without
// touching its output parameter, so an unattached registry answers each
// command with the dispatcher's default result.
package hook

import "context"

// LoadFunc loads the module at path with args and sets *result.
type LoadFunc func(ctx context.Context, path, args string, result *int32)

// UnloadFunc unloads the named module and sets *result.
type UnloadFunc func(ctx context.Context, name string, result *int32)

// NumFunc sets *result to the number of loaded modules.
type NumFunc func(ctx context.Context, result *int32)

// InfoFunc writes information about the named module into buf and sets
// *size to the number of bytes written.
type InfoFunc func(ctx context.Context, name string, buf []byte, size *int32)

// ListFunc writes the module list into buf and sets *result to the size of
// the list it produced.
type ListFunc func(ctx context.Context, buf []byte, result *int32)

// ControlFunc sends args (argLen bytes as copied from the caller) to the
// named module and sets *result.
type ControlFunc func(ctx context.Context, name, args string, argLen int64, result *int32)

// VersionFunc writes a NUL-terminated version string into buf.
type VersionFunc func(ctx context.Context, buf []byte)

// Table is one complete set of slot implementations. A Table is immutable
// once published by a Registry.
type Table struct {
	Load    LoadFunc
	Unload  UnloadFunc
	Num     NumFunc
	Info    InfoFunc
	List    ListFunc
	Control ControlFunc
	Version VersionFunc
}

// set reports whether the slot for p is non-nil in t.
func (t *Table) set(p Point) bool {
	switch p {
	case PointLoad:
		return t.Load != nil
	case PointUnload:
		return t.Unload != nil
	case PointNum:
		return t.Num != nil
	case PointInfo:
		return t.Info != nil
	case PointList:
		return t.List != nil
	case PointControl:
		return t.Control != nil
	case PointVersion:
		return t.Version != nil
	}
	return false
}

// copyPoint copies the slot for p from src into t.
func (t *Table) copyPoint(p Point, src *Table) {
	switch p {
	case PointLoad:
		t.Load = src.Load
	case PointUnload:
		t.Unload = src.Unload
	case PointNum:
		t.Num = src.Num
	case PointInfo:
		t.Info = src.Info
	case PointList:
		t.List = src.List
	case PointControl:
		t.Control = src.Control
	case PointVersion:
		t.Version = src.Version
	}
}

func backendTable(b Backend) *Table {
	return &Table{
		Load:    b.Load,
		Unload:  b.Unload,
		Num:     b.Num,
		Info:    b.Info,
		List:    b.List,
		Control: b.Control,
		Version: b.Version,
	}
}
