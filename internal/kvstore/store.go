// Package kvstore adapts the single wide key-value table described in spec
// section 3/6 onto DynamoDB: a primary key (pk, sk) plus one global
// secondary index (gsi1pk, gsi1sk) used for time-ordered listings and
// cross-cutting lookups. Every durable row in the system — RFPs, proposals,
// contracting cases, journal entries, events, jobs, memories, identity
// bindings — is owned by exactly one repository that speaks this interface;
// the agent runtime and job executor never write durable rows directly.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested item does not exist.
var ErrNotFound = errors.New("kvstore: item not found")

// ErrConditionFailed is returned when a conditional put/update loses a race.
// Callers handle this idempotently per spec section 7's Conflict kind:
// fetch the existing row and return it rather than treating it as fatal.
var ErrConditionFailed = errors.New("kvstore: condition check failed")

// Key identifies an item by its primary key.
type Key struct {
	PK string
	SK string
}

// Item is a single row: its primary key, GSI1 projection (empty strings
// when the item isn't indexed), and its attributes.
type Item struct {
	PK         string
	SK         string
	GSI1PK     string
	GSI1SK     string
	Attributes map[string]any
}

// PutOptions configures a conditional Put.
type PutOptions struct {
	// IfNotExists requires the item not already exist (DynamoDB
	// attribute_not_exists(pk) condition). Used for idempotency rows and
	// first-write-wins creation paths.
	IfNotExists bool
}

// UpdateOptions configures a conditional Update.
type UpdateOptions struct {
	// ConditionExpression is a DynamoDB-style condition expression
	// evaluated against the existing item before applying Sets/Removes
	// (e.g. "status = :expected").
	ConditionExpression string
	ExpressionValues    map[string]any
}

// QueryDirection controls scan order for Query.
type QueryDirection int

const (
	QueryForward QueryDirection = iota
	QueryBackward
)

// QueryInput describes a key-condition query against either the primary
// index or GSI1.
type QueryInput struct {
	// IndexGSI1, when true, queries (gsi1pk, gsi1sk) instead of (pk, sk).
	IndexGSI1 bool

	PKValue string
	// SKPrefix, when non-empty, restricts results to sort keys with this
	// prefix (a DynamoDB begins_with condition).
	SKPrefix string

	Direction QueryDirection
	Limit     int
	// ContinuationToken resumes a prior paged query; empty starts from the
	// beginning.
	ContinuationToken string
}

// QueryOutput is a page of query results.
type QueryOutput struct {
	Items                 []Item
	NextContinuationToken string
}

// TransactPut is one put operation within a Transact call.
type TransactPut struct {
	Item        Item
	IfNotExists bool
}

// TransactUpdate is one update operation within a Transact call.
type TransactUpdate struct {
	Key                 Key
	Sets                map[string]any
	ConditionExpression string
	ExpressionValues    map[string]any
}

// TransactWrite groups puts and updates that must all succeed or all fail,
// used for the idempotency-row + job-row creation pair and the contract
// template version-pointer advance (spec section 3).
type TransactWrite struct {
	Puts    []TransactPut
	Updates []TransactUpdate
}

// Store is the persistence port every repository (opportunity, memory,
// jobs, identity, templates) is built on. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key Key) (Item, error)
	Put(ctx context.Context, item Item, opts PutOptions) error
	Update(ctx context.Context, key Key, sets map[string]any, removes []string, opts UpdateOptions) error
	Delete(ctx context.Context, key Key) error
	Query(ctx context.Context, input QueryInput) (QueryOutput, error)
	Transact(ctx context.Context, write TransactWrite) error
}
