// Package identity resolves a user's identity from whichever identifier a
// caller has on hand — an external chat user ID, an email address, or an
// internal subject — and caches the result for a short TTL, since chat
// directories and profile stores change underneath a long-lived agent
// process (spec section 4.6).
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"goa.design/pulse/rmap"

	"github.com/polaris-ecosystems/rfp-agent/internal/telemetry"
)

// Identity is the resolved view of a user across the chat directory and the
// internal profile store.
type Identity struct {
	Sub                 string         `json:"sub,omitempty"`
	Email               string         `json:"email,omitempty"`
	DisplayName         string         `json:"displayName,omitempty"`
	Profile             map[string]any `json:"profile,omitempty"`
	ExternalChatUser    map[string]any `json:"externalChatUser,omitempty"`
	ExternalChatUserID  string         `json:"externalChatUserId,omitempty"`
	ExternalChatTeamID  string         `json:"externalChatTeamId,omitempty"`
	ExternalChatEnterID string         `json:"externalChatEnterpriseId,omitempty"`
}

// IsZero reports whether no identifier at all was resolved.
func (id Identity) IsZero() bool {
	return id.Sub == "" && id.Email == "" && id.ExternalChatUserID == ""
}

// DirectoryUser is the chat directory's view of a user, kept as a loose map
// (display name, profile email, avatar, timezone, …) since directory
// payloads vary by platform and most fields pass straight through to
// Identity.ExternalChatUser untouched.
type DirectoryUser map[string]any

// DirectoryClient resolves a user from the external chat platform (Slack,
// Teams, …). Implementations may themselves cache; ForceRefresh asks them to
// bypass that cache.
type DirectoryClient interface {
	GetUserInfo(ctx context.Context, userID string, forceRefresh bool) (DirectoryUser, error)
}

// DisplayName extracts the directory's preferred display name for a user,
// falling back through the usual Slack profile field order.
func DisplayName(u DirectoryUser) string {
	if u == nil {
		return ""
	}
	if name, _ := u["real_name"].(string); strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	profile, _ := u["profile"].(map[string]any)
	for _, key := range []string{"display_name", "real_name", "first_name"} {
		if v, _ := profile[key].(string); strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if name, _ := u["name"].(string); strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	return ""
}

func directoryEmail(u DirectoryUser) string {
	if u == nil {
		return ""
	}
	profile, _ := u["profile"].(map[string]any)
	email, _ := profile["email"].(string)
	return strings.ToLower(strings.TrimSpace(email))
}

// ProfileStore is the internal user-profile directory: a reverse email
// index plus per-subject profile documents.
type ProfileStore interface {
	GetProfile(ctx context.Context, sub string) (map[string]any, error)
	GetProfileByExternalChatUserID(ctx context.Context, externalChatUserID string) (map[string]any, error)
	GetSubByEmail(ctx context.Context, email string) (string, error)
	UpsertEmailIndex(ctx context.Context, email, sub string) error
}

// DirectoryLookup resolves a subject from an email address against a
// secondary identity directory (Cognito, an IdP, …) when the email index
// alone doesn't have it yet.
type DirectoryLookup interface {
	FindSubByEmail(ctx context.Context, email string) (string, error)
}

const cacheTTL = 120 * time.Second

// cacheEntry is the envelope stored under each cache key: the resolved
// identity plus its own expiry, so staleness is evaluated lazily on read
// rather than requiring a scan or a separate eviction loop.
type cacheEntry struct {
	ExpiresAt time.Time `json:"expiresAt"`
	Identity  Identity  `json:"identity"`
}

// identityCache is the subset of *rmap.Map the resolver uses, narrowed so
// tests can substitute a process-local fake instead of a live Redis
// connection.
type identityCache interface {
	Get(key string) (string, bool)
	Set(ctx context.Context, key, value string) (string, error)
	Delete(ctx context.Context, key string) (string, error)
	Keys() []string
}

type rmapIdentityCache struct {
	m *rmap.Map
}

func (c *rmapIdentityCache) Get(key string) (string, bool) { return c.m.Get(key) }

func (c *rmapIdentityCache) Set(ctx context.Context, key, value string) (string, error) {
	return c.m.Set(ctx, key, value)
}

func (c *rmapIdentityCache) Delete(ctx context.Context, key string) (string, error) {
	return c.m.Delete(ctx, key)
}

func (c *rmapIdentityCache) Keys() []string { return c.m.Keys() }

// Resolver resolves and caches user identities. The cache is a Pulse
// replicated map so multiple process instances share resolutions instead of
// each cold-starting its own.
type Resolver struct {
	directory DirectoryClient
	profiles  ProfileStore
	lookup    DirectoryLookup
	cache     identityCache
	logger    telemetry.Logger
}

// NewResolver constructs a Resolver backed by a Pulse replicated map. cache
// may be nil, in which case resolution still works but nothing is cached
// across calls.
func NewResolver(directory DirectoryClient, profiles ProfileStore, lookup DirectoryLookup, cache *rmap.Map, logger telemetry.Logger) *Resolver {
	var c identityCache
	if cache != nil {
		c = &rmapIdentityCache{m: cache}
	}
	return newResolver(directory, profiles, lookup, c, logger)
}

func newResolver(directory DirectoryClient, profiles ProfileStore, lookup DirectoryLookup, cache identityCache, logger telemetry.Logger) *Resolver {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Resolver{directory: directory, profiles: profiles, lookup: lookup, cache: cache, logger: logger}
}

// ResolveOptions names the identifiers a caller has on hand. At least one
// should be non-empty or resolution returns a zero Identity.
type ResolveOptions struct {
	ExternalChatUserID  string
	ExternalChatTeamID  string
	ExternalChatEnterID string
	Email               string
	Sub                 string
	ForceRefresh        bool
}

func cacheKey(opts ResolveOptions) string {
	switch {
	case opts.ExternalChatUserID != "":
		return fmt.Sprintf("identity::chat::%s::%s", strings.TrimSpace(opts.ExternalChatTeamID), strings.TrimSpace(opts.ExternalChatUserID))
	case opts.Email != "":
		return "identity::email::" + strings.ToLower(strings.TrimSpace(opts.Email))
	case opts.Sub != "":
		return "identity::sub::" + strings.TrimSpace(opts.Sub)
	default:
		return ""
	}
}

// Resolve resolves a user identity from whichever identifier is set on opts,
// trying the cache first unless ForceRefresh is set. Strategy order mirrors
// spec section 4.6: external chat user → profile/email; email → sub via
// reverse index, then directory lookup; sub → profile.
func (r *Resolver) Resolve(ctx context.Context, opts ResolveOptions) (Identity, error) {
	key := cacheKey(opts)
	if key != "" && !opts.ForceRefresh {
		if cached, ok := r.readCache(key); ok {
			return cached, nil
		}
	}

	identity := Identity{
		Sub:                 opts.Sub,
		Email:               strings.ToLower(strings.TrimSpace(opts.Email)),
		ExternalChatUserID:  opts.ExternalChatUserID,
		ExternalChatTeamID:  opts.ExternalChatTeamID,
		ExternalChatEnterID: opts.ExternalChatEnterID,
	}

	if opts.ExternalChatUserID != "" && r.directory != nil {
		user, err := r.directory.GetUserInfo(ctx, opts.ExternalChatUserID, opts.ForceRefresh)
		if err != nil {
			r.logger.Debug(ctx, "identity_directory_lookup_failed", "external_chat_user_id", opts.ExternalChatUserID, "error", err.Error())
		} else if user != nil {
			identity.ExternalChatUser = user
			identity.DisplayName = DisplayName(user)
			if identity.Email == "" {
				identity.Email = directoryEmail(user)
			}
		}

		if identity.Sub == "" && r.profiles != nil {
			if profile, err := r.profiles.GetProfileByExternalChatUserID(ctx, opts.ExternalChatUserID); err == nil && profile != nil {
				identity.Profile = profile
				identity.Sub = firstNonEmpty(profile, "_id", "userSub")
			}
		}
	}

	if identity.Sub == "" && identity.Email != "" && r.profiles != nil {
		if sub, err := r.profiles.GetSubByEmail(ctx, identity.Email); err == nil && sub != "" {
			identity.Sub = sub
		}
		if identity.Sub == "" && r.lookup != nil {
			if sub, err := r.lookup.FindSubByEmail(ctx, identity.Email); err == nil && sub != "" {
				identity.Sub = sub
				if r.profiles != nil {
					_ = r.profiles.UpsertEmailIndex(ctx, identity.Email, sub)
				}
			}
		}
	}

	if identity.Sub != "" && identity.Profile == nil && r.profiles != nil {
		if profile, err := r.profiles.GetProfile(ctx, identity.Sub); err == nil && profile != nil {
			identity.Profile = profile
		}
	}

	if key != "" {
		r.writeCache(key, identity)
	}
	return identity, nil
}

// ResolveFromExternalChat is the common-case convenience wrapper: resolve a
// chat-platform user ID to the full platform identity.
func (r *Resolver) ResolveFromExternalChat(ctx context.Context, userID, teamID, enterpriseID string, forceRefresh bool) (Identity, error) {
	if userID == "" {
		return Identity{}, nil
	}
	return r.Resolve(ctx, ResolveOptions{
		ExternalChatUserID:  userID,
		ExternalChatTeamID:  teamID,
		ExternalChatEnterID: enterpriseID,
		ForceRefresh:        forceRefresh,
	})
}

// ResolveFromEmail resolves an identity starting from an email address.
func (r *Resolver) ResolveFromEmail(ctx context.Context, email string, forceRefresh bool) (Identity, error) {
	return r.Resolve(ctx, ResolveOptions{Email: email, ForceRefresh: forceRefresh})
}

// ResolveFromSub resolves an identity starting from an internal subject.
func (r *Resolver) ResolveFromSub(ctx context.Context, sub string, forceRefresh bool) (Identity, error) {
	return r.Resolve(ctx, ResolveOptions{Sub: sub, ForceRefresh: forceRefresh})
}

// ClearCache evicts every cached identity. Intended for tests and forced
// reloads after a directory migration.
func (r *Resolver) ClearCache(ctx context.Context) {
	if r.cache == nil {
		return
	}
	for _, key := range r.cache.Keys() {
		_, _ = r.cache.Delete(ctx, key)
	}
}

func (r *Resolver) readCache(key string) (Identity, bool) {
	if r.cache == nil {
		return Identity{}, false
	}
	raw, ok := r.cache.Get(key)
	if !ok {
		return Identity{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Identity{}, false
	}
	if time.Now().After(entry.ExpiresAt) {
		return Identity{}, false
	}
	return entry.Identity, true
}

func (r *Resolver) writeCache(key string, identity Identity) {
	if r.cache == nil {
		return
	}
	entry := cacheEntry{ExpiresAt: time.Now().Add(cacheTTL), Identity: identity}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_, _ = r.cache.Set(context.Background(), key, string(data))
}

func firstNonEmpty(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, _ := m[k].(string); strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
