package opportunity

import (
	"context"
	"fmt"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
)

func changeProposalPK(id string) string { return fmt.Sprintf("CHANGE_PROPOSAL#%s", id) }

// CreateChangeProposal records a self-modification request. The returned
// proposal's ID is assigned here; creation does not open a pull request —
// that happens later via an approval-gated job referencing this ID.
func (r *Repository) CreateChangeProposal(ctx context.Context, proposal ChangeProposal) (ChangeProposal, error) {
	proposal.ID = newULID()
	proposal.CreatedAt = time.Now().UTC()

	attrs, err := structToMap(proposal)
	if err != nil {
		return ChangeProposal{}, err
	}
	item := kvstore.Item{PK: changeProposalPK(proposal.ID), SK: skProfile, Attributes: attrs}
	if err := r.store.Put(ctx, item, kvstore.PutOptions{}); err != nil {
		return ChangeProposal{}, fmt.Errorf("opportunity: create change proposal: %w", err)
	}
	return proposal, nil
}

// GetChangeProposal reads a change proposal by ID.
func (r *Repository) GetChangeProposal(ctx context.Context, id string) (ChangeProposal, error) {
	item, err := r.store.Get(ctx, kvstore.Key{PK: changeProposalPK(id), SK: skProfile})
	if err != nil {
		return ChangeProposal{}, fmt.Errorf("opportunity: get change proposal %s: %w", id, err)
	}
	var proposal ChangeProposal
	if err := mapToStruct(item.Attributes, &proposal); err != nil {
		return ChangeProposal{}, err
	}
	return proposal, nil
}
