package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"schemaline/internal/domain"
	"schemaline/internal/repo"
)

// Writer appends audit entries inside the caller's transaction.
type Writer struct {
	Repo repo.Repo
	Now  func() time.Time
}

// Append writes one entry. Ids are ULIDs, so lexical order is append order.
func (w Writer) Append(ctx context.Context, q repo.Querier, obj domain.DataObject, changeType domain.ChangeType, actorID string, changes any) (domain.ChangelogEntry, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	now := w.Now().UTC()
	payload, err := json.Marshal(changes)
	if err != nil {
		return domain.ChangelogEntry{}, fmt.Errorf("marshal changelog payload: %w", err)
	}
	entry := domain.ChangelogEntry{
		ID:           ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		DataObjectID: obj.ID,
		ModelID:      obj.ModelID,
		ChangedAt:    now.Format(time.RFC3339),
		ChangeType:   changeType,
		Changes:      payload,
	}
	if actorID != "" {
		entry.ChangedByUserID = &actorID
	}
	if err := w.Repo.InsertChangelog(ctx, q, entry); err != nil {
		return domain.ChangelogEntry{}, err
	}
	return entry, nil
}

// Snapshot captures the full state recorded for CREATE and DELETE.
func Snapshot(o domain.DataObject) domain.ObjectSnapshot {
	return domain.ObjectSnapshot{
		Data:           o.Data,
		CurrentStateID: o.CurrentStateID,
		OwnerID:        o.OwnerID,
	}
}

// Diff lists per-field changes between two data maps, sorted by field name.
// Both maps are expected in JSON-decoded form.
func Diff(before, after map[string]any) []domain.FieldChange {
	keys := map[string]struct{}{}
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)
	changes := []domain.FieldChange{}
	for _, k := range names {
		oldV, newV := before[k], after[k]
		if reflect.DeepEqual(oldV, newV) {
			continue
		}
		changes = append(changes, domain.FieldChange{Field: k, OldValue: oldV, NewValue: newV})
	}
	return changes
}

// StateChange returns the field change for a workflow move, or nil when the state is unchanged.
func StateChange(before, after *string) *domain.FieldChange {
	if before == nil && after == nil {
		return nil
	}
	if before != nil && after != nil && *before == *after {
		return nil
	}
	fc := domain.FieldChange{Field: domain.StateField}
	if before != nil {
		fc.OldValue = *before
	}
	if after != nil {
		fc.NewValue = *after
	}
	return &fc
}
