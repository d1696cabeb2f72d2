package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "icl-ledger", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	// Accessors fall back to global no-op providers.
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
}

func TestTrackOperation(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	attrs := AssetOperation("capitalize", "asset-001", "cfo")

	newCtx, finish := p.TrackOperation(ctx, "icl.capitalize", attrs...)
	require.NotNil(t, newCtx)

	time.Sleep(1 * time.Millisecond)
	finish(nil)
}

func TestTrackOperationWithError(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	_, finish := p.TrackOperation(context.Background(), "icl.retire")
	finish(errors.New("asset not active"))
}

func TestRecordMetricsDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()

	// No-ops when disabled; must not panic.
	p.RecordOperation(ctx, attribute.String("test", "value"))
	p.RecordError(ctx, errors.New("test"), attribute.String("test", "value"))
	p.RecordDuration(ctx, 100*time.Millisecond)
	p.RecordEntryAppended(ctx, EntryAppended("CAPITALIZATION", 1)...)
}

func TestStartSpan(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	newCtx, span := p.StartSpan(context.Background(), "icl.verify")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestShutdown(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestAssetOperation(t *testing.T) {
	attrs := AssetOperation("allocate", "asset-042", "platform-team")
	require.Len(t, attrs, 3)
	require.Equal(t, "icl.operation", string(attrs[0].Key))
	require.Equal(t, "allocate", attrs[0].Value.AsString())
	require.Equal(t, "asset-042", attrs[1].Value.AsString())
}

func TestEntryAppended(t *testing.T) {
	attrs := EntryAppended("DEPRECIATION", 17)
	require.Len(t, attrs, 2)
	require.Equal(t, "icl.entry.classification", string(attrs[0].Key))
	require.Equal(t, int64(17), attrs[1].Value.AsInt64())
}

func TestProofOperation(t *testing.T) {
	attrs := ProofOperation("asset-042", true)
	require.Len(t, attrs, 3)
	require.Equal(t, "icl.proof.valid", string(attrs[2].Key))
	require.True(t, attrs[2].Value.AsBool())
}

func TestSpanHelpers(t *testing.T) {
	ctx := context.Background()
	require.NotNil(t, SpanFromContext(ctx))
	AddSpanEvent(ctx, "entry.appended", attribute.String("key", "value"))
	SetSpanStatus(ctx, errors.New("test error"))
	SetSpanStatus(ctx, nil)
}
