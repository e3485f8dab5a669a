package bus

import (
	"context"

	"github.com/crossmindhq/crossmind-backend/internal/realtime"
)

// Bus fans SSE messages out across instances. The in-process hub alone
// is enough for a single instance; Redis carries the same messages when
// the service is scaled out.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
