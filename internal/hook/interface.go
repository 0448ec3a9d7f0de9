package hook

import "context"

//go:generate mockgen -destination=mocks/mock_backend.go -package=mocks github.com/mattjoyce/kpmd/internal/hook Backend

// Backend is a loader that implements every slot. AttachBackend binds a
// subset of its methods.
type Backend interface {
	Load(ctx context.Context, path, args string, result *int32)
	Unload(ctx context.Context, name string, result *int32)
	Num(ctx context.Context, result *int32)
	Info(ctx context.Context, name string, buf []byte, size *int32)
	List(ctx context.Context, buf []byte, result *int32)
	Control(ctx context.Context, name, args string, argLen int64, result *int32)
	Version(ctx context.Context, buf []byte)
}
