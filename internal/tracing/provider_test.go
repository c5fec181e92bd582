package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(Config{})
	require.NoError(t, err)
	require.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), SpanRun)
	require.False(t, span.SpanContext().IsValid(), "no-op spans carry no context")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_FileExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "traces.jsonl")

	p, err := NewProvider(Config{Enabled: true, Exporter: "file", FilePath: path})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), SpanRun)
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"name":"pipeline.run"`)
}

func TestNewProvider_FileExporterRequiresPath(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "file"})
	require.ErrorContains(t, err, "file_path required")
}

func TestNewProvider_OtherExporters(t *testing.T) {
	for _, exporter := range []string{"stdout", "none", ""} {
		t.Run(exporter, func(t *testing.T) {
			p, err := NewProvider(Config{Enabled: true, Exporter: exporter, SampleRate: 0.5})
			require.NoError(t, err)
			require.True(t, p.Enabled())
			_, span := p.Tracer().Start(context.Background(), SpanFetch)
			span.End()
			require.NoError(t, p.Shutdown(context.Background()))
		})
	}
}

func TestNewProvider_OTLPConnectsLazily(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, Exporter: "otlp", OTLPEndpoint: "127.0.0.1:1"})
	require.NoError(t, err, "the gRPC exporter must not dial at construction")
	require.True(t, p.Enabled())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.Shutdown(ctx)
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "zipkin"})
	require.ErrorContains(t, err, "unsupported exporter type: zipkin")
}
