package telemetry

import (
	"context"

	"ndamli-federation/provider/internal/telemetry/domain"
)

// EventEmitter emits authentication events (e.g. to OTel Logs). Best-effort;
// callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.AuthEvent) error
}
