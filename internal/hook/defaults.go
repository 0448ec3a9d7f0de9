package hook

import (
	"context"
	"fmt"

	"github.com/mattjoyce/kpmd/internal/log"
)

// Defaults returns the stub table: each slot records that it was called and
// leaves its output parameter alone.
func Defaults() *Table {
	return &Table{
		Load:    defaultLoad,
		Unload:  defaultUnload,
		Num:     defaultNum,
		Info:    defaultInfo,
		List:    defaultList,
		Control: defaultControl,
		Version: defaultVersion,
	}
}

func defaultLoad(_ context.Context, path, args string, result *int32) {
	log.WithHook(PointLoad.String()).Info("stub hook called",
		"symbol", PointLoad.Symbol(), "path", path, "args", args, "result_ptr", fmt.Sprintf("%p", result))
}

func defaultUnload(_ context.Context, name string, result *int32) {
	log.WithHook(PointUnload.String()).Info("stub hook called",
		"symbol", PointUnload.Symbol(), "name", name, "result_ptr", fmt.Sprintf("%p", result))
}

func defaultNum(_ context.Context, _ *int32) {
	log.WithHook(PointNum.String()).Info("stub hook called", "symbol", PointNum.Symbol())
}

func defaultInfo(_ context.Context, name string, buf []byte, _ *int32) {
	log.WithHook(PointInfo.String()).Info("stub hook called",
		"symbol", PointInfo.Symbol(), "name", name, "buffer_size", len(buf))
}

func defaultList(_ context.Context, buf []byte, _ *int32) {
	log.WithHook(PointList.String()).Info("stub hook called",
		"symbol", PointList.Symbol(), "buffer_size", len(buf))
}

func defaultControl(_ context.Context, name, args string, argLen int64, _ *int32) {
	log.WithHook(PointControl.String()).Info("stub hook called",
		"symbol", PointControl.Symbol(), "name", name, "args", args, "arg_len", argLen)
}

func defaultVersion(_ context.Context, buf []byte) {
	log.WithHook(PointVersion.String()).Info("stub hook called",
		"symbol", PointVersion.Symbol(), "buffer_size", len(buf))
}
