package synckit

import (
	"context"
	"fmt"
	"strings"

	"github.com/c0deZ3R0/signsync/errors"
)

// ConflictLastWriteWins is the only supported conflict policy name.
const ConflictLastWriteWins = "last_write_wins"

var _ ConflictResolver = (*LastWriteWinsResolver)(nil)

// LastWriteWinsResolver installs the proposed record as-is. Concurrent edits
// to other fields made between a caller's read and its write are lost.
type LastWriteWinsResolver struct{}

func (r *LastWriteWinsResolver) Resolve(ctx context.Context, c Conflict) (ResolvedConflict, error) {
	if c.Proposed == nil {
		return ResolvedConflict{SignType: c.Current, Decision: "keep_current", Reasons: []string{"nothing proposed"}}, nil
	}
	if c.Current == nil {
		return ResolvedConflict{SignType: c.Proposed, Decision: "keep_proposed", Reasons: []string{"current missing"}}, nil
	}
	return ResolvedConflict{SignType: c.Proposed, Decision: "keep_proposed", Reasons: []string{"last write wins"}}, nil
}

// ResolverByName maps a configured policy name to a resolver. Unknown names
// are rejected so a typo cannot silently change behavior.
func ResolverByName(name string) (ConflictResolver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ConflictLastWriteWins, "lww", "last-write-wins":
		return &LastWriteWinsResolver{}, nil
	default:
		return nil, errors.NewValidationError(errors.OpConfig,
			fmt.Errorf("unknown conflict resolution %q (supported: %s)", name, ConflictLastWriteWins))
	}
}
