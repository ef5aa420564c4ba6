package synckit

import (
	"context"

	"github.com/c0deZ3R0/signsync/models"
)

// Conflict describes a full-record replace of one sign type. Current is the
// registry record at the time of the write; Proposed is Current with the
// caller's updates applied.
type Conflict struct {
	Code          string
	SourceApp     string
	ChangedFields []string

	Current  *models.SignType
	Proposed *models.SignType
}

// ResolvedConflict captures the record to install and the decision taken.
type ResolvedConflict struct {
	SignType *models.SignType
	Decision string   // e.g. "keep_proposed", "keep_current"
	Reasons  []string // human-readable annotations for logs and metrics
}

// ConflictResolver is the strategy applied to every sign type update. It runs
// while the registry is locked and must not block.
type ConflictResolver interface {
	Resolve(ctx context.Context, c Conflict) (ResolvedConflict, error)
}
