// Package integration adapts the ledger to its neighbors: inbound
// attribution records become lifecycle calls, outbound exports and evidence
// packs feed financial platforms, and reconciliation checks their totals
// against the ledger.
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
	"github.com/Mindburn-Labs/icl/core/pkg/lifecycle"
	"github.com/Mindburn-Labs/icl/core/pkg/profile"
)

// ErrRejected marks records refused before reaching the ledger.
var ErrRejected = errors.New("integration: record rejected")

// RejectionError carries the reasons a record was refused.
type RejectionError struct {
	Reasons []string
}

func (e *RejectionError) Error() string {
	return "integration: record rejected: " + strings.Join(e.Reasons, "; ")
}

// Is reports true for ErrRejected so callers can branch without the type.
func (e *RejectionError) Is(target error) bool { return target == ErrRejected }

// attributionSchema validates the normalized inbound record shape.
const attributionSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["schema_version", "asset_id", "inference_cost", "execution_time", "timestamp", "model_version"],
	"properties": {
		"schema_version": {"type": "string", "minLength": 1},
		"asset_id": {"type": "string", "minLength": 1},
		"inference_cost": {"type": "number", "exclusiveMinimum": 0},
		"execution_time": {"type": "number", "exclusiveMinimum": 0},
		"timestamp": {"type": "string", "format": "date-time"},
		"model_version": {"type": "string", "minLength": 1},
		"actor": {"type": "string"}
	},
	"additionalProperties": false
}`

const attributionSchemaURL = "https://icl.schemas.local/attribution.schema.json"

// AttributionRecord is one normalized usage observation from the upstream
// attribution source.
type AttributionRecord struct {
	SchemaVersion string    `json:"schema_version"`
	AssetID       string    `json:"asset_id"`
	InferenceCost float64   `json:"inference_cost"`
	ExecutionTime float64   `json:"execution_time"`
	Timestamp     time.Time `json:"timestamp"`
	ModelVersion  string    `json:"model_version"`
	Actor         string    `json:"actor,omitempty"`
}

// Ledger is the slice of the lifecycle surface the adapter drives.
type Ledger interface {
	Utilize(ctx context.Context, req lifecycle.UtilizeRequest) (ledger.Entry, error)
}

// Adapter turns inbound attribution records into utilization entries.
type Adapter struct {
	ledger  Ledger
	profile *profile.Profile
	schema  *jsonschema.Schema
}

// NewAdapter compiles the embedded record schema once. The profile gates
// which schema versions are accepted.
func NewAdapter(l Ledger, p *profile.Profile) (*Adapter, error) {
	if p == nil {
		p = profile.Default()
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	if err := c.AddResource(attributionSchemaURL, strings.NewReader(attributionSchema)); err != nil {
		return nil, fmt.Errorf("integration: schema load: %w", err)
	}
	schema, err := c.Compile(attributionSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("integration: schema compile: %w", err)
	}

	return &Adapter{ledger: l, profile: p, schema: schema}, nil
}

// Consume validates one raw record and books it as utilization. Schema and
// version failures come back as *RejectionError; lifecycle errors pass
// through typed so callers can distinguish a malformed record from a
// domain refusal.
func (a *Adapter) Consume(ctx context.Context, raw []byte) (ledger.Entry, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ledger.Entry{}, &RejectionError{Reasons: []string{"invalid JSON: " + err.Error()}}
	}

	if err := a.schema.Validate(doc); err != nil {
		return ledger.Entry{}, &RejectionError{Reasons: schemaReasons(err)}
	}

	var record AttributionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return ledger.Entry{}, &RejectionError{Reasons: []string{"decode: " + err.Error()}}
	}

	if err := a.profile.AllowsSchema(record.SchemaVersion); err != nil {
		return ledger.Entry{}, &RejectionError{Reasons: []string{err.Error()}}
	}

	actor := record.Actor
	if actor == "" {
		actor = record.ModelVersion
	}

	return a.ledger.Utilize(ctx, lifecycle.UtilizeRequest{
		AssetID:     record.AssetID,
		Amount:      decimal.NewFromFloat(record.InferenceCost),
		Actor:       actor,
		EffectiveAt: record.Timestamp,
	})
}

// BatchRejection records why one element of a batch was refused.
type BatchRejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult summarizes a batch consume. Rejections are data; a batch
// with failures is not an error.
type BatchResult struct {
	Accepted []string         `json:"accepted"`
	Rejected []BatchRejection `json:"rejected,omitempty"`
}

// ConsumeBatch processes a JSON array of records, each independently.
func (a *Adapter) ConsumeBatch(ctx context.Context, raw []byte) (BatchResult, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return BatchResult{}, fmt.Errorf("integration: batch must be a JSON array: %w", err)
	}

	result := BatchResult{Accepted: make([]string, 0, len(elements))}
	for i, element := range elements {
		entry, err := a.Consume(ctx, element)
		if err != nil {
			result.Rejected = append(result.Rejected, BatchRejection{Index: i, Reason: err.Error()})
			continue
		}
		result.Accepted = append(result.Accepted, entry.ID)
	}
	return result, nil
}

// schemaReasons flattens a validation error into leaf messages.
func schemaReasons(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	var reasons []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			reasons = append(reasons, loc+": "+e.Message)
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return reasons
}
