package toolerrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/toolerrors"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind toolerrors.Kind
		want int
	}{
		{toolerrors.KindNotConfigured, 500},
		{toolerrors.KindUpstream, 502},
		{toolerrors.KindNotFound, 404},
		{toolerrors.KindConflict, 409},
		{toolerrors.KindDomainNotAllowed, 400},
		{toolerrors.KindKeyNotAllowed, 400},
		{toolerrors.KindChannelNotAllowed, 400},
		{toolerrors.KindRepoNotAllowed, 400},
		{toolerrors.KindProtocolViolation, 0},
		{toolerrors.KindPolicyCheck, 0},
		{toolerrors.KindParse, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.kind.HTTPStatus(), "kind %s", c.kind)
	}
}

func TestRetryable(t *testing.T) {
	assert.False(t, toolerrors.KindNotConfigured.Retryable())
	assert.False(t, toolerrors.KindProtocolViolation.Retryable())
	assert.False(t, toolerrors.KindDomainNotAllowed.Retryable())
	assert.True(t, toolerrors.KindUpstream.Retryable())
	assert.True(t, toolerrors.KindConflict.Retryable())
}

func TestFromErrorPreservesExistingToolError(t *testing.T) {
	te := toolerrors.New(toolerrors.KindNotFound, "missing rfp")
	wrapped := fmt.Errorf("loading: %w", te)
	got := toolerrors.FromError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, toolerrors.KindNotFound, got.Kind)
	assert.Equal(t, "missing rfp", got.Message)
}

func TestFromErrorWrapsPlainErrorAsUpstream(t *testing.T) {
	got := toolerrors.FromError(errors.New("boom"))
	require.NotNil(t, got)
	assert.Equal(t, toolerrors.KindUpstream, got.Kind)
	assert.Equal(t, "boom", got.Message)
}

func TestFailClipsMessageTo800Chars(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	te := toolerrors.New(toolerrors.KindUpstream, string(long))
	result := toolerrors.Fail(te)
	assert.Len(t, result.Error, 800)
	assert.False(t, result.OK)
	assert.True(t, result.Retryable)
}

func TestOkWrapsResult(t *testing.T) {
	result := toolerrors.Ok(map[string]int{"a": 1})
	assert.True(t, result.OK)
	assert.Nil(t, result.ErrorDetails)
}

func TestUnwrapChain(t *testing.T) {
	root := toolerrors.New(toolerrors.KindUpstream, "root cause")
	outer := toolerrors.NewWithCause(toolerrors.KindUpstream, "outer", root)
	assert.ErrorIs(t, outer, root)
}
