package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"

	otellog "go.opentelemetry.io/otel/log"
)

// resetInstruments resets the sync.Once so initInstruments re-runs against
// the current (noop) global MeterProvider during tests.
func resetInstruments(t *testing.T) {
	t.Helper()
	instOnce = sync.Once{}
	t.Cleanup(func() { instOnce = sync.Once{} })
}

// --- helper functions ---

func TestStatusStr(t *testing.T) {
	if got := statusStr(nil); got != "ok" {
		t.Errorf("statusStr(nil) = %q, want \"ok\"", got)
	}
	if got := statusStr(errors.New("boom")); got != "error" {
		t.Errorf("statusStr(err) = %q, want \"error\"", got)
	}
}

func TestSeverity_Nil(t *testing.T) {
	if got := severity(nil); got != otellog.SeverityInfo {
		t.Errorf("severity(nil) = %v, want SeverityInfo", got)
	}
}

func TestSeverity_Error(t *testing.T) {
	if got := severity(errors.New("err")); got != otellog.SeverityError {
		t.Errorf("severity(err) = %v, want SeverityError", got)
	}
}

func TestErrKV_Nil(t *testing.T) {
	kv := errKV(nil)
	if kv.Value.AsString() != "" {
		t.Errorf("errKV(nil) value = %q, want empty", kv.Value.AsString())
	}
}

func TestErrKV_NonNil(t *testing.T) {
	kv := errKV(errors.New("test error"))
	if kv.Value.AsString() != "test error" {
		t.Errorf("errKV(err) value = %q, want %q", kv.Value.AsString(), "test error")
	}
}

// --- Record* functions (noop providers, must not panic) ---

func TestRecordLoginAttempt(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordLoginAttempt(ctx, "seat0", "alice")
}

func TestRecordLoginOutcome(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordLoginOutcome(ctx, "seat0", "alice", true)
	RecordLoginOutcome(ctx, "seat0", "bob", false)
}

func TestRecordSessionOpen(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordSessionOpen(ctx, "Session1", "alice", nil)
	RecordSessionOpen(ctx, "Session2", "bob", errors.New("spawn failed"))
}

func TestRecordSessionClose(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordSessionClose(ctx, "Session1", "exited")
	RecordSessionClose(ctx, "Session2", "broker_stop")
}

func TestRecordCredentialFailure(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordCredentialFailure(ctx, "authenticate", errors.New("auth rejected"))
	RecordCredentialFailure(ctx, "open_session", errors.New("pam error"))
}

func TestRecordProtocolError(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordProtocolError(ctx, "helper.request_env", "Display", "Env")
}
