package actiongate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
	"github.com/polaris-ecosystems/rfp-agent/internal/toolerrors"
)

// Repository is the only component allowed to write PendingAction rows.
type Repository struct {
	store kvstore.Store
}

// NewRepository constructs a Repository over store.
func NewRepository(store kvstore.Store) *Repository {
	return &Repository{store: store}
}

// ProposeInput describes a new pending action (ai_agent.py's propose()).
type ProposeInput struct {
	Kind               string
	Args               map[string]any
	Summary            string
	RequestedByUserSub string
	TTL                time.Duration
}

// Propose records a pending action and returns it, never executing
// anything. The caller (outside the tool registry) later confirms it by ID.
func (r *Repository) Propose(ctx context.Context, in ProposeInput) (PendingAction, error) {
	if in.Kind == "" {
		return PendingAction{}, toolerrors.New(toolerrors.KindUpstream, "kind is required")
	}
	if in.Args == nil {
		in.Args = map[string]any{}
	}

	now := time.Now().UTC()
	action := PendingAction{
		ID:                 newULID(),
		Kind:               in.Kind,
		Args:               in.Args,
		Summary:            in.Summary,
		RequestedByUserSub: in.RequestedByUserSub,
		Status:             StatusPending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(ClampTTL(in.TTL)),
	}
	if err := r.put(ctx, action); err != nil {
		return PendingAction{}, err
	}
	return action, nil
}

func (r *Repository) put(ctx context.Context, action PendingAction) error {
	attrs, err := structToMap(action)
	if err != nil {
		return err
	}
	item := kvstore.Item{PK: actionPK(action.ID), SK: skProfile, Attributes: attrs}
	if err := r.store.Put(ctx, item, kvstore.PutOptions{}); err != nil {
		return fmt.Errorf("actiongate: put %s: %w", action.ID, err)
	}
	return nil
}

// Get fetches a pending action by ID, reporting it expired (without
// deleting the row) once its TTL has elapsed and it was never confirmed.
func (r *Repository) Get(ctx context.Context, id string) (PendingAction, error) {
	item, err := r.store.Get(ctx, kvstore.Key{PK: actionPK(id), SK: skProfile})
	if err != nil {
		if err == kvstore.ErrNotFound {
			return PendingAction{}, toolerrors.New(toolerrors.KindNotFound, "action expired or not found")
		}
		return PendingAction{}, fmt.Errorf("actiongate: get %s: %w", id, err)
	}
	var action PendingAction
	if err := mapToStruct(item.Attributes, &action); err != nil {
		return PendingAction{}, err
	}
	if action.Status == StatusPending && time.Now().UTC().After(action.ExpiresAt) {
		action.Status = StatusExpired
	}
	return action, nil
}

// MarkDone records the outcome of executing a confirmed action
// (ai_agent.py's mark_action_done()).
func (r *Repository) MarkDone(ctx context.Context, id string, status Status, result map[string]any) error {
	key := kvstore.Key{PK: actionPK(id), SK: skProfile}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("actiongate: marshal result: %w", err)
	}
	var resultMap map[string]any
	if err := json.Unmarshal(resultJSON, &resultMap); err != nil {
		return fmt.Errorf("actiongate: unmarshal result: %w", err)
	}
	if err := r.store.Update(ctx, key, map[string]any{
		"status": string(status),
		"result": resultMap,
	}, nil, kvstore.UpdateOptions{}); err != nil {
		return fmt.Errorf("actiongate: mark done %s: %w", id, err)
	}
	return nil
}

// Cancel marks a still-pending action cancelled (ai_agent.py's cancel()).
func (r *Repository) Cancel(ctx context.Context, id string) error {
	key := kvstore.Key{PK: actionPK(id), SK: skProfile}
	if err := r.store.Update(ctx, key, map[string]any{
		"status": string(StatusCancelled),
	}, nil, kvstore.UpdateOptions{}); err != nil {
		return fmt.Errorf("actiongate: cancel %s: %w", id, err)
	}
	return nil
}

func structToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("actiongate: marshal: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("actiongate: unmarshal: %w", err)
	}
	return m, nil
}

func mapToStruct(m map[string]any, out any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("actiongate: marshal: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("actiongate: unmarshal: %w", err)
	}
	return nil
}
