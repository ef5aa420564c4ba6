package synckit

import (
	"context"
	"log/slog"
	"time"

	"github.com/c0deZ3R0/signsync/logging"
)

// ObservableResolver wraps any ConflictResolver to log decisions and feed
// them to a MetricsCollector.
type ObservableResolver struct {
	wrapped ConflictResolver
	metrics MetricsCollector
	logger  *slog.Logger
}

var _ ConflictResolver = (*ObservableResolver)(nil)

// NewObservableResolver wraps r. Nil metrics or logger fall back to no-ops.
func NewObservableResolver(r ConflictResolver, metrics MetricsCollector, logger *slog.Logger) *ObservableResolver {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &ObservableResolver{wrapped: r, metrics: metrics, logger: logger}
}

// Unwrap returns the underlying resolver.
func (o *ObservableResolver) Unwrap() ConflictResolver { return o.wrapped }

func (o *ObservableResolver) Resolve(ctx context.Context, c Conflict) (ResolvedConflict, error) {
	start := time.Now()
	res, err := o.wrapped.Resolve(ctx, c)
	if err != nil {
		o.logger.Error("conflict resolution failed", "code", c.Code, "source", c.SourceApp, "error", err)
		o.metrics.RecordOperationError("resolve_conflict", "resolver_error")
		return ResolvedConflict{}, err
	}
	o.metrics.RecordConflict(c.Code, res.Decision)
	o.logger.Debug("conflict resolved",
		"code", c.Code,
		"source", c.SourceApp,
		"decision", res.Decision,
		"reasons", res.Reasons,
		"changed_fields", c.ChangedFields,
		"duration", time.Since(start))
	return res, nil
}
