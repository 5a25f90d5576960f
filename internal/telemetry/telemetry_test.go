package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/tenantrag/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.Nil(t, tel.LoggerProvider())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))

	h := tel.Health()
	assert.True(t, h.Healthy)
	assert.False(t, h.Degraded)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "collector.example.com:4317"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, false},
		{"local insecure", func(c *Config) { c.Enabled = true }, false},
		{"ipv6 loopback", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, false},
		{"remote with tls", func(c *Config) { c.Enabled = true; c.Insecure = false; c.Endpoint = "otel.example.com:4317" }, false},
		{"remote insecure", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, true},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, true},
		{"bad rate", func(c *Config) { c.Enabled = true; c.SamplingRate = 2 }, true},
		{"no service", func(c *Config) { c.Enabled = true; c.ServiceName = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromObservability(t *testing.T) {
	cfg := FromObservability(config.ObservabilityConfig{
		ServiceName:     "ragd",
		EnableTelemetry: true,
		OTLPEndpoint:    "http://localhost:4318",
		OTLPProtocol:    "http/protobuf",
		OTLPInsecure:    true,
		SamplingRate:    0.5,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "ragd", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, 0.5, cfg.SamplingRate)
	assert.NoError(t, cfg.Validate())
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "localhost:4318", stripScheme("http://localhost:4318"))
	assert.Equal(t, "otel.example.com", stripScheme("https://otel.example.com"))
	assert.Equal(t, "localhost:4317", stripScheme("localhost:4317"))
}

func TestTestTelemetry_RecordsSpansAndMetrics(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("test").Start(ctx, "store.search")
	span.SetAttributes(attribute.String("tenant.domain", "sales"))
	span.End()

	tt.AssertSpanExists(t, "store.search")
	tt.AssertSpanAttribute(t, "store.search", "tenant.domain", "sales")

	counter, err := tt.Meter("test").Int64Counter("tenantrag.test.calls")
	require.NoError(t, err)
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("mode", "hybrid")))

	rm, err := tt.Collect(ctx)
	require.NoError(t, err)
	m, ok := MetricByName(rm, "tenantrag.test.calls")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
	assert.Equal(t, "hybrid", attrString(sum.DataPoints[0].Attributes, "mode"))
}
