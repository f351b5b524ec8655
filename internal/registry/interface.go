package registry

import "context"

// Registry tracks live relay sessions per room for observability. Relay
// correctness never depends on it.
type Registry interface {
	Register(ctx context.Context, roomSlug, sessionID, participantID string) error
	Deregister(ctx context.Context, roomSlug, sessionID string) error
	Count(ctx context.Context, roomSlug string) (int, error)
	StartHeartbeat(ctx context.Context) error
	StopHeartbeat()
}
