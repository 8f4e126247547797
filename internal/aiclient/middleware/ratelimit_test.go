package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/aiclient/middleware"
	"github.com/polaris-ecosystems/rfp-agent/internal/model"
)

type fakeModelClient struct {
	err   error
	calls int
}

func (f *fakeModelClient) Complete(_ context.Context, _ *model.Request) (*model.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &model.Response{}, nil
}

func (f *fakeModelClient) Stream(_ context.Context, _ *model.Request) (model.Streamer, error) {
	return nil, nil
}

func TestAdaptiveRateLimiterAllowsRequestsWithinBudget(t *testing.T) {
	limiter := middleware.NewAdaptiveRateLimiter(context.Background(), nil, "", 600000, 1200000)
	fake := &fakeModelClient{}
	client := limiter.Middleware()(fake)

	req := &model.Request{Messages: []*model.Message{{Parts: []model.Part{model.TextPart{Text: "hello"}}}}}
	_, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestAdaptiveRateLimiterBacksOffOnRateLimitSignal(t *testing.T) {
	limiter := middleware.NewAdaptiveRateLimiter(context.Background(), nil, "", 60000, 60000)
	fake := &fakeModelClient{err: model.ErrRateLimited}
	client := limiter.Middleware()(fake)

	req := &model.Request{Messages: []*model.Message{{Parts: []model.Part{model.TextPart{Text: "hello"}}}}}
	_, err := client.Complete(context.Background(), req)
	assert.ErrorIs(t, err, model.ErrRateLimited)
}

func TestAdaptiveRateLimiterMiddlewareNilClientReturnsNil(t *testing.T) {
	limiter := middleware.NewAdaptiveRateLimiter(context.Background(), nil, "", 60000, 60000)
	assert.Nil(t, limiter.Middleware()(nil))
}
