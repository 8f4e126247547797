package objectstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/objectstore"
	"github.com/polaris-ecosystems/rfp-agent/internal/objectstore/inmem"
)

func TestAllowlistedStoreRejectsDisallowedPrefix(t *testing.T) {
	store := objectstore.NewAllowlistedStore(inmem.New("assets"), nil)
	err := store.PutBytes(context.Background(), "etc/passwd", []byte("x"), "text/plain")
	assert.ErrorIs(t, err, objectstore.ErrPrefixNotAllowed)
}

func TestAllowlistedStorePermitsConfiguredPrefix(t *testing.T) {
	store := objectstore.NewAllowlistedStore(inmem.New("assets"), nil)
	ctx := context.Background()

	require.NoError(t, store.PutBytes(ctx, "rfp/uploads/doc.pdf", []byte("hello"), "application/pdf"))

	data, err := store.GetBytes(ctx, "rfp/uploads/doc.pdf", 1024)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestGetBytesTooLargeReturnsErrObjectTooLarge(t *testing.T) {
	store := objectstore.NewAllowlistedStore(inmem.New("assets"), nil)
	ctx := context.Background()
	require.NoError(t, store.PutBytes(ctx, "rfp/uploads/doc.pdf", make([]byte, 100), "application/pdf"))

	_, err := store.GetBytes(ctx, "rfp/uploads/doc.pdf", 10)
	assert.ErrorIs(t, err, objectstore.ErrObjectTooLarge)
}

func TestMoveCopiesThenDeletesSource(t *testing.T) {
	store := objectstore.NewAllowlistedStore(inmem.New("assets"), nil)
	ctx := context.Background()
	require.NoError(t, store.PutBytes(ctx, "agent/scratch/a.txt", []byte("x"), "text/plain"))

	require.NoError(t, store.Move(ctx, "agent/scratch/a.txt", "agent/scratch/b.txt"))

	_, err := store.Head(ctx, "agent/scratch/a.txt")
	assert.Error(t, err)
	data, err := store.GetBytes(ctx, "agent/scratch/b.txt", 1024)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestClampPutExpiryBoundsToOneHour(t *testing.T) {
	assert.Equal(t, time.Minute, objectstore.ClampPutExpiry(time.Second))
	assert.Equal(t, time.Hour, objectstore.ClampPutExpiry(24*time.Hour))
	assert.Equal(t, 10*time.Minute, objectstore.ClampPutExpiry(10*time.Minute))
}

func TestClampGetExpiryBoundsToTwentyFourHours(t *testing.T) {
	assert.Equal(t, time.Minute, objectstore.ClampGetExpiry(time.Second))
	assert.Equal(t, 24*time.Hour, objectstore.ClampGetExpiry(48*time.Hour))
}

func TestPresignPutClampsExpiryBeforeDelegating(t *testing.T) {
	store := objectstore.NewAllowlistedStore(inmem.New("assets"), nil)
	req, err := store.PresignPut(context.Background(), "rfp/uploads/doc.pdf", "application/pdf", 24*time.Hour)
	require.NoError(t, err)
	assert.Contains(t, req.URL, "expires=3600")
}
