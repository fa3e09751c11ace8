package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(utils.NewLogger(&buf, "json", "info"))

	sink.Record(context.Background(), Event{Action: "booking.approve", ActorID: "owner", EntityID: "b1", Fields: map[string]any{"listing_id": "l1"}})
	sink.Record(context.Background(), Event{Action: "booking.approve", ActorID: "owner", EntityID: "b2", Err: apperror.Conflict("already booked")})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var ok, failed map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &ok))
	require.NoError(t, json.Unmarshal(lines[1], &failed))

	assert.Equal(t, "INFO", ok["level"])
	assert.Equal(t, "success", ok["outcome"])
	assert.Equal(t, "l1", ok["listing_id"])
	assert.Equal(t, "audit", ok["component"])

	assert.Equal(t, "WARN", failed["level"])
	assert.Equal(t, "failure", failed["outcome"])
	assert.Equal(t, "CONFLICT", failed["code"])
}

func TestMemorySinkCopies(t *testing.T) {
	sink := &MemorySink{}
	sink.Record(context.Background(), Event{Action: "fee.set"})

	events := sink.Events()
	events[0].Action = "changed"
	assert.Equal(t, "fee.set", sink.Events()[0].Action)
}
