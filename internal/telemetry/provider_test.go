package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/felixgeelhaar/qrlink/internal/config"
)

func TestInitProviderDisabled(t *testing.T) {
	ctx := context.Background()
	shutdown, err := InitProvider(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
}

func TestInitProviderEnabledWithoutEndpoint(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.SampleRate = 0.5

	shutdown, err := InitProvider(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = InitProvider(ctx, DefaultConfig()) })

	tp, isSDK := GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, isSDK)
	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, shutdown(ctx))
}

func TestInitProviderWithEndpoint(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "http://127.0.0.1:4318"

	shutdown, err := InitProvider(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = InitProvider(ctx, DefaultConfig()) })
	require.NotNil(t, shutdown)
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{Enabled: true, Endpoint: "collector:4318", SampleRate: 0.25}, "1.2.3")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector:4318", cfg.Endpoint)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "qrlink", cfg.ServiceName)
}

type flakyExporter struct {
	failures int
	calls    int
}

func (f *flakyExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("collector unavailable")
	}
	return nil
}

func (f *flakyExporter) Shutdown(context.Context) error { return nil }

func TestRetryableExporterRetries(t *testing.T) {
	inner := &flakyExporter{failures: 2}
	require.NoError(t, newRetryableExporter(inner).ExportSpans(context.Background(), nil))
	assert.Equal(t, 3, inner.calls)
}

func TestRetryableExporterGivesUp(t *testing.T) {
	inner := &flakyExporter{failures: 100}
	err := newRetryableExporter(inner).ExportSpans(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, exportMaxTries, inner.calls)
}

func TestSpansCarryStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { _, _ = InitProvider(context.Background(), DefaultConfig()) })

	ctx := context.Background()
	_, span := StartCommandSpan(ctx, "auth login")
	End(span, nil)

	_, span = StartRequestSpan(ctx, "POST", "/auth/login")
	End(span, errors.New("boom"))

	_, span = StartTransitionSpan(ctx, "logout")
	End(span, nil)

	ended := recorder.Ended()
	require.Len(t, ended, 3)
	assert.Equal(t, "command.auth login", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Equal(t, "POST /auth/login", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "session.logout", ended[2].Name())
}

func TestCreateResourceMergesWithSDKDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceVersion = "1.2.0"

	res, err := createResource(cfg)
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, cfg.ServiceName, attrs["service.name"])
	assert.Equal(t, "1.2.0", attrs["service.version"])
	assert.Contains(t, attrs, "telemetry.sdk.language")
}

func TestSetTracerProviderReplacesGlobal(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	SetTracerProvider(tp)
	t.Cleanup(func() { _, _ = InitProvider(context.Background(), DefaultConfig()) })

	assert.Same(t, tp, GetTracerProvider())
}
