package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestCorrelationID_RoundTripsThroughContext(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "abc12345")

	if got := CorrelationIDFromContext(ctx); got != "abc12345" {
		t.Fatalf("CorrelationIDFromContext = %q, want abc12345", got)
	}
}

func TestCorrelationIDFromContext_EmptyWhenAbsent(t *testing.T) {
	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Fatalf("CorrelationIDFromContext = %q, want empty", got)
	}
}

func TestNewCorrelationID_IsEightCharacters(t *testing.T) {
	id := NewCorrelationID()
	if len(id) != 8 {
		t.Fatalf("len(NewCorrelationID()) = %d, want 8", len(id))
	}
}

func TestCtx_AddsCorrelationIDFieldWhenPresent(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "deadbeef")
	var buf bytes.Buffer
	lg := Ctx(ctx, zerolog.New(&buf))

	lg.Info().Msg("noop")

	if !strings.Contains(buf.String(), `"correlation_id":"deadbeef"`) {
		t.Fatalf("log line %q lacks the correlation_id field", buf.String())
	}
}
