// Package telemetry — recorder.go
// Recording helper functions for authbroker's login/session lifecycle
// events. Each function emits both an OTel log event and increments a
// metric counter, mirroring the lazy-instrument-registration pattern
// the teacher used for its own agent lifecycle events.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterRecorderName = "github.com/gascity-labs/authbroker"
	loggerName        = "authbroker"
)

// recorderInstruments holds all lazy-initialized OTel metric instruments.
type recorderInstruments struct {
	loginAttemptTotal   metric.Int64Counter
	loginSuccessTotal   metric.Int64Counter
	loginFailureTotal   metric.Int64Counter
	sessionOpenTotal    metric.Int64Counter
	sessionCloseTotal   metric.Int64Counter
	credentialFailTotal metric.Int64Counter
	protocolErrorTotal  metric.Int64Counter
}

var (
	instOnce sync.Once
	inst     recorderInstruments
)

// initInstruments registers all recorder metric instruments against the
// current global MeterProvider. Called lazily on first use, so it picks
// up whatever provider Init installed (or the SDK's no-op default).
func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(meterRecorderName)

		inst.loginAttemptTotal, _ = m.Int64Counter("authbroker.login.attempts.total",
			metric.WithDescription("Total Start requests received by the broker"))
		inst.loginSuccessTotal, _ = m.Int64Counter("authbroker.login.successes.total",
			metric.WithDescription("Total logins that reached LoginSucceeded"))
		inst.loginFailureTotal, _ = m.Int64Counter("authbroker.login.failures.total",
			metric.WithDescription("Total logins that reached LoginFailed"))
		inst.sessionOpenTotal, _ = m.Int64Counter("authbroker.session.opens.total",
			metric.WithDescription("Total sessions launched"))
		inst.sessionCloseTotal, _ = m.Int64Counter("authbroker.session.closes.total",
			metric.WithDescription("Total sessions torn down"))
		inst.credentialFailTotal, _ = m.Int64Counter("authbroker.credential.failures.total",
			metric.WithDescription("Total Credential Engine step failures, by step"))
		inst.protocolErrorTotal, _ = m.Int64Counter("authbroker.protocol.errors.total",
			metric.WithDescription("Total out-of-order or malformed wire messages observed"))
	})
}

func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func severity(err error) otellog.Severity {
	if err != nil {
		return otellog.SeverityError
	}
	return otellog.SeverityInfo
}

func errKV(err error) otellog.KeyValue {
	if err != nil {
		return otellog.String("error", err.Error())
	}
	return otellog.String("error", "")
}

func emit(ctx context.Context, body string, sev otellog.Severity, attrs ...otellog.KeyValue) {
	logger := global.GetLoggerProvider().Logger(loggerName)
	var r otellog.Record
	r.SetBody(otellog.StringValue(body))
	r.SetSeverity(sev)
	r.AddAttributes(attrs...)
	logger.Emit(ctx, r)
}

// RecordLoginAttempt records a Start request arriving at the broker.
func RecordLoginAttempt(ctx context.Context, seatName, user string) {
	initInstruments()
	inst.loginAttemptTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("seat", seatName),
	))
	emit(ctx, "login.attempt", otellog.SeverityInfo,
		otellog.String("seat", seatName),
		otellog.String("user", user),
	)
}

// RecordLoginOutcome records whether a login ended in success or failure.
func RecordLoginOutcome(ctx context.Context, seatName, user string, succeeded bool) {
	initInstruments()
	attrs := metric.WithAttributes(attribute.String("seat", seatName))
	if succeeded {
		inst.loginSuccessTotal.Add(ctx, 1, attrs)
	} else {
		inst.loginFailureTotal.Add(ctx, 1, attrs)
	}
	body := "login.failed"
	sev := otellog.SeverityWarn
	if succeeded {
		body, sev = "login.succeeded", otellog.SeverityInfo
	}
	emit(ctx, body, sev,
		otellog.String("seat", seatName),
		otellog.String("user", user),
	)
}

// RecordSessionOpen records a session launch.
func RecordSessionOpen(ctx context.Context, sessionName, user string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.sessionOpenTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
	emit(ctx, "session.open", severity(err),
		otellog.String("session", sessionName),
		otellog.String("user", user),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordSessionClose records a session teardown.
func RecordSessionClose(ctx context.Context, sessionName, reason string) {
	initInstruments()
	inst.sessionCloseTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
	emit(ctx, "session.close", otellog.SeverityInfo,
		otellog.String("session", sessionName),
		otellog.String("reason", reason),
	)
}

// RecordCredentialFailure records a login step that returned an error
// (the helper reports request_display, authenticate, account_valid,
// establish_credentials, open_session and launch).
func RecordCredentialFailure(ctx context.Context, step string, err error) {
	initInstruments()
	inst.credentialFailTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
	))
	emit(ctx, "credential.failure", otellog.SeverityWarn,
		otellog.String("step", step),
		errKV(err),
	)
}

// RecordProtocolError records an out-of-order or malformed wire message.
func RecordProtocolError(ctx context.Context, where, got, want string) {
	initInstruments()
	inst.protocolErrorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("where", where),
	))
	emit(ctx, "protocol.error", otellog.SeverityWarn,
		otellog.String("where", where),
		otellog.String("got", got),
		otellog.String("want", want),
	)
}
