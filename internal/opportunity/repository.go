package opportunity

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
)

const (
	skProfile = "PROFILE"

	// sortKeyTimeLayout is a fixed-width timestamp layout, so journal and
	// event sort keys order lexically by time (RFC3339Nano drops trailing
	// zeros).
	sortKeyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

func rfpPK(rfpID string) string { return fmt.Sprintf("RFP#%s", rfpID) }

func journalPK(rfpID string) string { return fmt.Sprintf("RFP#%s#JOURNAL", rfpID) }

func eventsPK(rfpID string) string { return fmt.Sprintf("RFP#%s#EVENTS", rfpID) }

func threadBindingPK(channelID, threadTS string) string {
	return fmt.Sprintf("THREAD#%s#%s", channelID, threadTS)
}

// Repository is the only component allowed to write OpportunityState,
// Journal, Event, and ThreadBinding rows (spec section 3).
type Repository struct {
	store kvstore.Store
}

// NewRepository constructs a Repository over store.
func NewRepository(store kvstore.Store) *Repository {
	return &Repository{store: store}
}

func newULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// EnsureStateExists creates a default state row for rfpID if one doesn't
// already exist. Idempotent: a concurrent creator's ErrConditionFailed is
// swallowed since the row now exists either way.
func (r *Repository) EnsureStateExists(ctx context.Context, rfpID string) error {
	now := time.Now().UTC()
	state := State{
		RFPID:     rfpID,
		Stage:     StageNew,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	item, err := stateToItem(state)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, item, kvstore.PutOptions{IfNotExists: true}); err != nil {
		if err == kvstore.ErrConditionFailed {
			return nil
		}
		return fmt.Errorf("opportunity: ensure state exists %s: %w", rfpID, err)
	}
	return nil
}

// GetState reads the canonical row for rfpID.
func (r *Repository) GetState(ctx context.Context, rfpID string) (State, error) {
	item, err := r.store.Get(ctx, kvstore.Key{PK: rfpPK(rfpID), SK: skProfile})
	if err != nil {
		return State{}, fmt.Errorf("opportunity: get state %s: %w", rfpID, err)
	}
	return fromPatchMap(item.Attributes)
}

// PatchResult reports the outcome of a PatchState call, including any
// policy checks produced while sanitizing the patch.
type PatchResult struct {
	State        State
	PolicyChecks []PolicyCheck
}

// PatchState applies a shallow merge patch to rfpID's state, sanitizing
// commitment appends first per SanitizeOpportunityPatch. The write bumps
// version and advances updatedAt monotonically. A failed durable write does
// not abort the caller: the error is returned for the caller to decide
// whether to emit an event describing the attempt, per spec section 4.3's
// failure semantics.
func (r *Repository) PatchState(ctx context.Context, rfpID string, patch map[string]any, actor map[string]any) (PatchResult, error) {
	current, err := r.GetState(ctx, rfpID)
	if err != nil {
		return PatchResult{}, err
	}

	sanitized, checks := SanitizeOpportunityPatch(patch, actor)

	currentMap, err := toPatchMap(current)
	if err != nil {
		return PatchResult{}, err
	}
	mergedMap, err := applyShallowPatch(currentMap, sanitized)
	if err != nil {
		return PatchResult{}, err
	}
	merged, err := fromPatchMap(mergedMap)
	if err != nil {
		return PatchResult{}, err
	}

	merged.RFPID = rfpID
	merged.Version = current.Version + 1
	now := time.Now().UTC()
	if now.After(merged.UpdatedAt) {
		merged.UpdatedAt = now
	} else {
		merged.UpdatedAt = current.UpdatedAt.Add(time.Nanosecond)
	}

	item, err := stateToItem(merged)
	if err != nil {
		return PatchResult{}, err
	}
	if err := r.store.Put(ctx, item, kvstore.PutOptions{}); err != nil {
		return PatchResult{}, fmt.Errorf("opportunity: patch state %s: %w", rfpID, err)
	}

	return PatchResult{State: merged, PolicyChecks: checks}, nil
}

func stateToItem(state State) (kvstore.Item, error) {
	attrs, err := toPatchMap(state)
	if err != nil {
		return kvstore.Item{}, err
	}
	return kvstore.Item{
		PK:         rfpPK(state.RFPID),
		SK:         skProfile,
		GSI1PK:     "TYPE#RFP",
		GSI1SK:     fmt.Sprintf("%s#%s", state.CreatedAt.UTC().Format(time.RFC3339Nano), state.RFPID),
		Attributes: attrs,
	}, nil
}

// AppendEntry writes a journal row for rfpID with a monotonic time-ordered
// sort key.
func (r *Repository) AppendEntry(ctx context.Context, rfpID string, entry JournalEntry) (JournalEntry, error) {
	entry.RFPID = rfpID
	entry.ID = newULID()
	entry.CreatedAt = time.Now().UTC()

	attrs, err := structToMap(entry)
	if err != nil {
		return JournalEntry{}, err
	}
	item := kvstore.Item{
		PK:         journalPK(rfpID),
		SK:         fmt.Sprintf("%s#%s", entry.CreatedAt.Format(sortKeyTimeLayout), entry.ID),
		Attributes: attrs,
	}
	if err := r.store.Put(ctx, item, kvstore.PutOptions{}); err != nil {
		return JournalEntry{}, fmt.Errorf("opportunity: append entry %s: %w", rfpID, err)
	}
	return entry, nil
}

// AppendEvent writes a durable explainability record for rfpID. Called for
// every tool invocation that touches an opportunity, successful or not.
func (r *Repository) AppendEvent(ctx context.Context, rfpID string, event Event) (Event, error) {
	event.RFPID = rfpID
	event.ID = newULID()
	event.CreatedAt = time.Now().UTC()

	attrs, err := structToMap(event)
	if err != nil {
		return Event{}, err
	}
	item := kvstore.Item{
		PK:         eventsPK(rfpID),
		SK:         fmt.Sprintf("%s#%s", event.CreatedAt.Format(sortKeyTimeLayout), event.ID),
		Attributes: attrs,
	}
	if err := r.store.Put(ctx, item, kvstore.PutOptions{}); err != nil {
		return Event{}, fmt.Errorf("opportunity: append event %s: %w", rfpID, err)
	}
	return event, nil
}

// ListJournal returns journal entries for rfpID, oldest first.
func (r *Repository) ListJournal(ctx context.Context, rfpID string, limit int) ([]JournalEntry, error) {
	out, err := r.store.Query(ctx, kvstore.QueryInput{PKValue: journalPK(rfpID), Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("opportunity: list journal %s: %w", rfpID, err)
	}
	entries := make([]JournalEntry, 0, len(out.Items))
	for _, item := range out.Items {
		var entry JournalEntry
		if err := mapToStruct(item.Attributes, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ListEvents returns explainability events for rfpID, oldest first.
func (r *Repository) ListEvents(ctx context.Context, rfpID string, limit int) ([]Event, error) {
	out, err := r.store.Query(ctx, kvstore.QueryInput{PKValue: eventsPK(rfpID), Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("opportunity: list events %s: %w", rfpID, err)
	}
	events := make([]Event, 0, len(out.Items))
	for _, item := range out.Items {
		var event Event
		if err := mapToStruct(item.Attributes, &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// GetBinding returns the RFP a chat thread is bound to, if any.
func (r *Repository) GetBinding(ctx context.Context, channelID, threadTS string) (ThreadBinding, error) {
	item, err := r.store.Get(ctx, kvstore.Key{PK: threadBindingPK(channelID, threadTS), SK: skProfile})
	if err != nil {
		return ThreadBinding{}, fmt.Errorf("opportunity: get binding %s/%s: %w", channelID, threadTS, err)
	}
	var binding ThreadBinding
	if err := mapToStruct(item.Attributes, &binding); err != nil {
		return ThreadBinding{}, err
	}
	return binding, nil
}

// SetBinding records that a chat thread refers to rfpID, so future messages
// in the thread don't need to re-specify which RFP they're about.
func (r *Repository) SetBinding(ctx context.Context, channelID, threadTS, rfpID, boundBy string) error {
	binding := ThreadBinding{
		ChannelID: channelID,
		ThreadTS:  threadTS,
		RFPID:     rfpID,
		BoundBy:   boundBy,
		BoundAt:   time.Now().UTC(),
	}
	attrs, err := structToMap(binding)
	if err != nil {
		return err
	}
	item := kvstore.Item{PK: threadBindingPK(channelID, threadTS), SK: skProfile, Attributes: attrs}
	if err := r.store.Put(ctx, item, kvstore.PutOptions{}); err != nil {
		return fmt.Errorf("opportunity: set binding %s/%s: %w", channelID, threadTS, err)
	}
	return nil
}
