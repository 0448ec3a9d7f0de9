package hook

import (
	"fmt"
	"strings"
)

// Point names one of the seven extension slots.
type Point int

const (
	PointLoad Point = iota
	PointUnload
	PointNum
	PointInfo
	PointList
	PointControl
	PointVersion

	numPoints
)

var pointNames = [numPoints]string{
	PointLoad:    "load",
	PointUnload:  "unload",
	PointNum:     "num",
	PointInfo:    "info",
	PointList:    "list",
	PointControl: "control",
	PointVersion: "version",
}

// Stable entry names an external loader resolves when attaching.
var pointSymbols = [numPoints]string{
	PointLoad:    "kpm_load_module_path",
	PointUnload:  "kpm_unload_module",
	PointNum:     "kpm_num",
	PointInfo:    "kpm_info",
	PointList:    "kpm_list",
	PointControl: "kpm_control",
	PointVersion: "kpm_version",
}

// Points returns every hook point in slot order.
func Points() []Point {
	out := make([]Point, 0, numPoints)
	for p := PointLoad; p < numPoints; p++ {
		out = append(out, p)
	}
	return out
}

func (p Point) valid() bool { return p >= PointLoad && p < numPoints }

func (p Point) String() string {
	if !p.valid() {
		return fmt.Sprintf("point(%d)", int(p))
	}
	return pointNames[p]
}

// Symbol returns the stable entry name of the slot.
func (p Point) Symbol() string {
	if !p.valid() {
		return ""
	}
	return pointSymbols[p]
}

// ParsePoint accepts either a short name ("load") or an entry name
// ("kpm_load_module_path").
func ParsePoint(s string) (Point, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p := PointLoad; p < numPoints; p++ {
		if s == pointNames[p] || s == pointSymbols[p] {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown hook point %q", s)
}
