package otel

import (
	"context"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4318",
		"OTEL_EXPORTER_OTLP_HEADERS":  "authorization=Bearer abc, x-tenant = fund ,broken",
		"OTEL_EXPORTER_OTLP_INSECURE": "false",
		"OTEL_TRACES_SAMPLER_ARG":     "0.25",
	}
	cfg := ConfigFromEnv("fundworker", ComponentWorker, "test", func(key string) string { return env[key] })
	if cfg.Endpoint != "collector:4318" || cfg.Insecure {
		t.Fatalf("unexpected endpoint config: %+v", cfg)
	}
	if len(cfg.Headers) != 2 || cfg.Headers["authorization"] != "Bearer abc" || cfg.Headers["x-tenant"] != "fund" {
		t.Fatalf("unexpected headers: %+v", cfg.Headers)
	}
	if !cfg.Enabled() || cfg.SampleRatio != 0.25 {
		t.Fatalf("expected both signals enabled at ratio 0.25, got %+v", cfg)
	}
}

func TestResourceAttributes(t *testing.T) {
	base := ConfigFromEnv("fundworker", ComponentWorker, "prod", func(string) string { return "" })
	cfg := base.
		WithAttribute("portfolium.fund", "0x00000000000000000000000000000000000000f1").
		WithAttribute("chain_id", "137").
		WithAttribute("portfolio", " ")
	if len(base.Attributes) != 0 {
		t.Fatalf("WithAttribute changed the original config: %v", base.Attributes)
	}

	got := map[string]string{}
	for _, kv := range cfg.resourceAttributes() {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	want := map[string]string{
		"service.name":           "fundworker",
		"deployment.environment": "prod",
		"portfolium.component":   "worker",
		"portfolium.fund":        "0x00000000000000000000000000000000000000f1",
		"portfolium.chain_id":    "137",
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected attributes %v", got)
	}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("attribute %s = %q, want %q", key, got[key], value)
		}
	}
}

func TestDisabledTelemetryIsNoop(t *testing.T) {
	cfg := ConfigFromEnv("portfoliumd", ComponentDaemon, "", func(key string) string {
		if key == "OTEL_SDK_DISABLED" {
			return "true"
		}
		return ""
	})
	if cfg.Enabled() {
		t.Fatalf("expected telemetry to be disabled")
	}
	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
