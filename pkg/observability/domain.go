package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Ledger semantic convention attributes.
var (
	AttrAssetID        = attribute.Key("icl.asset.id")
	AttrOperation      = attribute.Key("icl.operation")
	AttrActor          = attribute.Key("icl.actor")
	AttrClassification = attribute.Key("icl.entry.classification")
	AttrSequence       = attribute.Key("icl.entry.sequence")
	AttrMethod         = attribute.Key("icl.depreciation.method")
	AttrProofValid     = attribute.Key("icl.proof.valid")
)

// AssetOperation creates attributes for a lifecycle operation.
func AssetOperation(operation, assetID, actor string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOperation.String(operation),
		AttrAssetID.String(assetID),
		AttrActor.String(actor),
	}
}

// EntryAppended creates attributes for an appended ledger entry.
func EntryAppended(classification string, sequence uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrClassification.String(classification),
		AttrSequence.Int64(int64(sequence)),
	}
}

// DepreciationOperation creates attributes for a depreciation run.
func DepreciationOperation(assetID, method string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOperation.String("depreciate"),
		AttrAssetID.String(assetID),
		AttrMethod.String(method),
	}
}

// ProofOperation creates attributes for proof generation.
func ProofOperation(assetID string, valid bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOperation.String("prove"),
		AttrAssetID.String(assetID),
		AttrProofValid.Bool(valid),
	}
}

// SpanFromContext extracts the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span when non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
