// Package secretstore adapts AWS Secrets Manager for server-side secret
// reads (spec section 6). Secret values are never exposed through the tool
// layer: GetSecretString is for internal callers building outbound API
// clients. DescribeSecret returns metadata only, behind an explicit
// allowlist, and is the operation a tool may safely wrap.
package secretstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSecretNotAllowed is returned when a secret ID is not present in the
// configured describe allowlist.
var ErrSecretNotAllowed = errors.New("secretstore: secret not allowed")

// ErrMissingSecretID is returned when a blank secret ID is passed.
var ErrMissingSecretID = errors.New("secretstore: missing secret id")

// SecretMetadata is the subset of a DescribeSecret response safe to surface
// to a tool caller: it deliberately excludes SecretString/SecretBinary and
// version-stage payload fields.
type SecretMetadata struct {
	ARN               string
	Name              string
	Description       string
	KMSKeyID          string
	RotationEnabled   bool
	RotationLambdaARN string
	LastChangedDate   string
	LastRotatedDate   string
	LastAccessedDate  string
	DeletedDate       string
	Tags              map[string]string
}

// Store is the secrets port. GetSecretString is for internal use only and
// must never be reachable from the tool registry.
type Store interface {
	GetSecretString(ctx context.Context, secretID string) (string, error)
	DescribeSecret(ctx context.Context, secretID string) (SecretMetadata, error)
}

// AllowlistedDescriber wraps a Store so that DescribeSecret only succeeds
// for secret IDs on the configured allowlist, while GetSecretString passes
// through unrestricted for trusted internal callers.
type AllowlistedDescriber struct {
	inner   Store
	allowed map[string]struct{}
}

// NewAllowlistedDescriber wraps inner. If allowedSecretIDs is empty, every
// DescribeSecret call is rejected — callers must configure an explicit
// allowlist rather than default-opening metadata access.
func NewAllowlistedDescriber(inner Store, allowedSecretIDs []string) *AllowlistedDescriber {
	allowed := make(map[string]struct{}, len(allowedSecretIDs))
	for _, id := range allowedSecretIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			allowed[id] = struct{}{}
		}
	}
	return &AllowlistedDescriber{inner: inner, allowed: allowed}
}

func (d *AllowlistedDescriber) GetSecretString(ctx context.Context, secretID string) (string, error) {
	return d.inner.GetSecretString(ctx, secretID)
}

func (d *AllowlistedDescriber) DescribeSecret(ctx context.Context, secretID string) (SecretMetadata, error) {
	secretID = strings.TrimSpace(secretID)
	if secretID == "" {
		return SecretMetadata{}, ErrMissingSecretID
	}
	if len(d.allowed) == 0 {
		return SecretMetadata{}, fmt.Errorf("%w: %s", ErrSecretNotAllowed, secretID)
	}
	if _, ok := d.allowed[secretID]; !ok {
		return SecretMetadata{}, fmt.Errorf("%w: %s", ErrSecretNotAllowed, secretID)
	}
	return d.inner.DescribeSecret(ctx, secretID)
}
