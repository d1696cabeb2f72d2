package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/icl/core/pkg/audit"
)

func decodeLine(t *testing.T, line string) audit.Event {
	t.Helper()
	require.True(t, strings.HasPrefix(line, "AUDIT: "))
	var event audit.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "AUDIT: "))), &event))
	return event
}

func TestRecordWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	err := logger.Record(context.Background(), audit.Success(audit.EventMutation, "cfo", "capitalize", "model-alpha", nil))
	require.NoError(t, err)

	event := decodeLine(t, buf.String())
	assert.Equal(t, audit.EventMutation, event.Type)
	assert.Equal(t, "cfo", event.Actor)
	assert.Equal(t, "capitalize", event.Action)
	assert.Equal(t, "model-alpha", event.Resource)
	assert.Equal(t, audit.OutcomeOK, event.Outcome)
	assert.Empty(t, event.Error)
	assert.Len(t, event.ID, 36)
	assert.False(t, event.Timestamp.IsZero())
}

func TestRecordRejection(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	cause := errors.New("capital: asset model-alpha is not active (status RETIRED)")
	err := logger.Record(context.Background(), audit.Rejection(audit.EventMutation, "cfo", "retire", "model-alpha", cause, map[string]any{"attempt": 2}))
	require.NoError(t, err)

	event := decodeLine(t, buf.String())
	assert.Equal(t, audit.OutcomeRejected, event.Outcome)
	assert.Contains(t, event.Error, "not active")
	assert.Equal(t, float64(2), event.Metadata["attempt"])
}

func TestRecordPreservesCallerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	in := audit.Success(audit.EventAccess, "auditor", "proof", "model-alpha", nil)
	in.ID = "evt-0001"
	require.NoError(t, logger.Record(context.Background(), in))

	event := decodeLine(t, buf.String())
	assert.Equal(t, "evt-0001", event.ID)
}

func TestRecordLinesAreSeparated(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	require.NoError(t, logger.Record(context.Background(), audit.Success(audit.EventMutation, "cfo", "capitalize", "a", nil)))
	require.NoError(t, logger.Record(context.Background(), audit.Success(audit.EventMutation, "cfo", "utilize", "a", nil)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	first := decodeLine(t, lines[0])
	second := decodeLine(t, lines[1])
	assert.NotEqual(t, first.ID, second.ID)
}

func TestNopLogger(t *testing.T) {
	logger := audit.NewNopLogger()
	require.NoError(t, logger.Record(context.Background(), audit.Success(audit.EventSystem, "system", "rehydrate", "", nil)))
}
