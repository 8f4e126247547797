package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/polaris-ecosystems/rfp-agent/internal/telemetry"
)

func TestNoopBundleSatisfiesInterfaces(t *testing.T) {
	b := telemetry.Noop()
	ctx := context.Background()

	assert.NotPanics(t, func() {
		b.Logger.Debug(ctx, "hello", "k", "v")
		b.Logger.Info(ctx, "hello")
		b.Logger.Warn(ctx, "hello")
		b.Logger.Error(ctx, "hello")
		b.Metrics.IncCounter("c", 1, "tag", "v")
		b.Metrics.RecordTimer("t", time.Millisecond)
		b.Metrics.RecordGauge("g", 1.5)
	})

	newCtx, span := b.Tracer.Start(ctx, "op")
	assert.Equal(t, ctx, newCtx)
	assert.NotPanics(t, func() {
		span.AddEvent("evt")
		span.SetStatus(0, "")
		span.RecordError(nil)
		span.End()
	})
	assert.NotNil(t, b.Tracer.Span(ctx))
}
