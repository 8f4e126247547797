package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	data map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]string{}}
}

func (c *fakeCache) Get(key string) (string, bool) {
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) Set(_ context.Context, key, value string) (string, error) {
	prev := c.data[key]
	c.data[key] = value
	return prev, nil
}

func (c *fakeCache) Delete(_ context.Context, key string) (string, error) {
	prev := c.data[key]
	delete(c.data, key)
	return prev, nil
}

func (c *fakeCache) Keys() []string {
	out := make([]string, 0, len(c.data))
	for k := range c.data {
		out = append(out, k)
	}
	return out
}

type fakeDirectory struct {
	users        map[string]DirectoryUser
	calls        int
	forceRefresh bool
}

func (d *fakeDirectory) GetUserInfo(_ context.Context, userID string, forceRefresh bool) (DirectoryUser, error) {
	d.calls++
	d.forceRefresh = forceRefresh
	u, ok := d.users[userID]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

type fakeProfiles struct {
	byExternalChatUser map[string]map[string]any
	bySub              map[string]map[string]any
	emailIndex         map[string]string
	upserts            int
}

func (p *fakeProfiles) GetProfile(_ context.Context, sub string) (map[string]any, error) {
	prof, ok := p.bySub[sub]
	if !ok {
		return nil, errors.New("not found")
	}
	return prof, nil
}

func (p *fakeProfiles) GetProfileByExternalChatUserID(_ context.Context, externalChatUserID string) (map[string]any, error) {
	prof, ok := p.byExternalChatUser[externalChatUserID]
	if !ok {
		return nil, nil
	}
	return prof, nil
}

func (p *fakeProfiles) GetSubByEmail(_ context.Context, email string) (string, error) {
	return p.emailIndex[email], nil
}

func (p *fakeProfiles) UpsertEmailIndex(_ context.Context, email, sub string) error {
	p.upserts++
	if p.emailIndex == nil {
		p.emailIndex = map[string]string{}
	}
	p.emailIndex[email] = sub
	return nil
}

type fakeLookup struct {
	subByEmail map[string]string
	calls      int
}

func (l *fakeLookup) FindSubByEmail(_ context.Context, email string) (string, error) {
	l.calls++
	return l.subByEmail[email], nil
}

func TestResolveFromExternalChatFollowsDirectoryThenProfile(t *testing.T) {
	dir := &fakeDirectory{users: map[string]DirectoryUser{
		"U123": {
			"real_name": "Ada Lovelace",
			"profile":   map[string]any{"email": "Ada@Example.com"},
		},
	}}
	profiles := &fakeProfiles{byExternalChatUser: map[string]map[string]any{
		"U123": {"_id": "sub-1", "fullName": "Ada Lovelace"},
	}}
	r := newResolver(dir, profiles, nil, newFakeCache(), nil)

	id, err := r.ResolveFromExternalChat(context.Background(), "U123", "T1", "", false)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", id.Sub)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.Equal(t, "Ada Lovelace", id.DisplayName)
	assert.Equal(t, "T1", id.ExternalChatTeamID)
}

func TestResolveFromExternalChatReturnsZeroIdentityWhenUserIDEmpty(t *testing.T) {
	r := newResolver(nil, nil, nil, newFakeCache(), nil)
	id, err := r.ResolveFromExternalChat(context.Background(), "", "", "", false)
	require.NoError(t, err)
	assert.True(t, id.IsZero())
}

func TestResolveCachesByKeyAndSkipsDirectoryOnSecondCall(t *testing.T) {
	dir := &fakeDirectory{users: map[string]DirectoryUser{
		"U1": {"real_name": "Grace Hopper"},
	}}
	r := newResolver(dir, &fakeProfiles{}, nil, newFakeCache(), nil)

	_, err := r.ResolveFromExternalChat(context.Background(), "U1", "T1", "", false)
	require.NoError(t, err)
	assert.Equal(t, 1, dir.calls)

	_, err = r.ResolveFromExternalChat(context.Background(), "U1", "T1", "", false)
	require.NoError(t, err)
	assert.Equal(t, 1, dir.calls, "second resolve should be served from cache")
}

func TestResolveForceRefreshBypassesCache(t *testing.T) {
	dir := &fakeDirectory{users: map[string]DirectoryUser{
		"U1": {"real_name": "Grace Hopper"},
	}}
	r := newResolver(dir, &fakeProfiles{}, nil, newFakeCache(), nil)

	_, err := r.ResolveFromExternalChat(context.Background(), "U1", "T1", "", false)
	require.NoError(t, err)
	_, err = r.ResolveFromExternalChat(context.Background(), "U1", "T1", "", true)
	require.NoError(t, err)
	assert.Equal(t, 2, dir.calls)
}

func TestResolveFromEmailFallsBackToDirectoryLookupAndUpsertsIndex(t *testing.T) {
	profiles := &fakeProfiles{bySub: map[string]map[string]any{
		"sub-9": {"fullName": "Katherine Johnson"},
	}}
	lookup := &fakeLookup{subByEmail: map[string]string{"k@example.com": "sub-9"}}
	r := newResolver(nil, profiles, lookup, newFakeCache(), nil)

	id, err := r.ResolveFromEmail(context.Background(), "k@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, "sub-9", id.Sub)
	assert.Equal(t, 1, lookup.calls)
	assert.Equal(t, 1, profiles.upserts)
	assert.Equal(t, "Katherine Johnson", id.Profile["fullName"])
}

func TestResolveFromEmailPrefersEmailIndexOverDirectoryLookup(t *testing.T) {
	profiles := &fakeProfiles{
		emailIndex: map[string]string{"k@example.com": "sub-9"},
		bySub:      map[string]map[string]any{"sub-9": {"fullName": "Katherine Johnson"}},
	}
	lookup := &fakeLookup{subByEmail: map[string]string{"k@example.com": "sub-other"}}
	r := newResolver(nil, profiles, lookup, newFakeCache(), nil)

	id, err := r.ResolveFromEmail(context.Background(), "k@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, "sub-9", id.Sub)
	assert.Equal(t, 0, lookup.calls)
}

func TestResolveFromSubLoadsProfile(t *testing.T) {
	profiles := &fakeProfiles{bySub: map[string]map[string]any{
		"sub-1": {"fullName": "Margaret Hamilton"},
	}}
	r := newResolver(nil, profiles, nil, newFakeCache(), nil)

	id, err := r.ResolveFromSub(context.Background(), "sub-1", false)
	require.NoError(t, err)
	assert.Equal(t, "Margaret Hamilton", id.Profile["fullName"])
}

func TestClearCacheEvictsAllEntries(t *testing.T) {
	cache := newFakeCache()
	dir := &fakeDirectory{users: map[string]DirectoryUser{"U1": {"real_name": "Hedy Lamarr"}}}
	r := newResolver(dir, &fakeProfiles{}, nil, cache, nil)

	_, err := r.ResolveFromExternalChat(context.Background(), "U1", "T1", "", false)
	require.NoError(t, err)
	assert.NotEmpty(t, cache.Keys())

	r.ClearCache(context.Background())
	assert.Empty(t, cache.Keys())

	_, err = r.ResolveFromExternalChat(context.Background(), "U1", "T1", "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, dir.calls, "resolving after ClearCache should hit the directory again")
}

func TestDisplayNamePrefersRealNameThenProfileFields(t *testing.T) {
	assert.Equal(t, "Ada", DisplayName(DirectoryUser{"real_name": "Ada"}))
	assert.Equal(t, "Grace", DisplayName(DirectoryUser{"profile": map[string]any{"display_name": "Grace"}}))
	assert.Equal(t, "", DisplayName(nil))
}
