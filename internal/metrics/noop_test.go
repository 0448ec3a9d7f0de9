package metrics

import "context"

type noopBackend struct{}

func (noopBackend) Load(context.Context, string, string, *int32)           {}
func (noopBackend) Unload(context.Context, string, *int32)                 {}
func (noopBackend) Num(context.Context, *int32)                            {}
func (noopBackend) Info(context.Context, string, []byte, *int32)           {}
func (noopBackend) List(context.Context, []byte, *int32)                   {}
func (noopBackend) Control(context.Context, string, string, int64, *int32) {}
func (noopBackend) Version(context.Context, []byte)                        {}
