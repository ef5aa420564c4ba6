package bus

import (
	"context"
	"fmt"
	"sort"

	"github.com/c0deZ3R0/signsync/errors"
	"github.com/c0deZ3R0/signsync/models"
)

// SharedSignTypesKey names the shared registry in sharedData:changed events.
const SharedSignTypesKey = "signTypes"

func cloneRegistry(src map[string]*models.SignType) map[string]*models.SignType {
	out := make(map[string]*models.SignType, len(src))
	for code, st := range src {
		out[code] = st.Clone()
	}
	return out
}

func sortedCodes(m map[string]*models.SignType) []string {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func checkRegistry(op errors.Operation, m map[string]*models.SignType) error {
	for code, st := range m {
		if st == nil {
			return errors.NewValidationError(op, fmt.Errorf("sign type %s is nil", code))
		}
		if st.Code != code {
			return errors.NewValidationError(op, fmt.Errorf("sign type keyed %s has code %s", code, st.Code))
		}
		if err := st.Validate(); err != nil {
			return errors.NewValidationError(op, err)
		}
	}
	return nil
}

// SignTypes returns a deep copy of the shared registry.
func (b *Bus) SignTypes() map[string]*models.SignType {
	return cloneRegistry(*b.registry.Load())
}

// SignType returns a copy of one shared sign type.
func (b *Bus) SignType(code string) (*models.SignType, bool) {
	st, ok := (*b.registry.Load())[code]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// SignTypeCodes returns the registry codes in sorted order.
func (b *Bus) SignTypeCodes() []string {
	return sortedCodes(*b.registry.Load())
}

// UpdateSignTypes replaces the whole registry with a copy of next and
// publishes sharedData:changed.
func (b *Bus) UpdateSignTypes(ctx context.Context, next map[string]*models.SignType, sourceApp string) error {
	return b.MutateSignTypes(ctx, sourceApp, func(draft map[string]*models.SignType) error {
		for code := range draft {
			delete(draft, code)
		}
		for code, st := range next {
			draft[code] = st.Clone()
		}
		return nil
	})
}

// MutateSignTypes runs fn on a private copy of the registry and, when fn
// succeeds, installs the copy in one atomic replace. Concurrent mutations
// are serialized; readers never observe a partial change. fn must not
// publish or block.
func (b *Bus) MutateSignTypes(ctx context.Context, sourceApp string, fn func(draft map[string]*models.SignType) error) error {
	b.registryMu.Lock()
	draft := cloneRegistry(*b.registry.Load())
	if err := fn(draft); err != nil {
		b.registryMu.Unlock()
		return err
	}
	if err := checkRegistry(errors.OpPublish, draft); err != nil {
		b.registryMu.Unlock()
		return err
	}
	b.registry.Store(&draft)
	codes := sortedCodes(draft)
	b.registryMu.Unlock()

	b.Emit(ctx, sourceApp, SharedDataChanged{Key: SharedSignTypesKey, Codes: codes})
	return nil
}

// MarkDirty publishes project:dirty.
func (b *Bus) MarkDirty(ctx context.Context, sourceApp, reason string) *Delivery {
	return b.Emit(ctx, sourceApp, ProjectDirty{Reason: reason})
}
