package observability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-user-service/internal/config"
)

func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func tracingConfig(ratio float64) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: "user-service",
		SampleRatio: ratio,
	}
}

func setup(t *testing.T, cfg config.OTELConfig) {
	t.Helper()
	shutdown, err := SetupOTel(context.Background(), cfg, "v1.2.3")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })
}

func TestSetupOTel_DisabledKeepsNoopProvider(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Endpoint: "ignored:4317"}, "v0")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("disabled tracing replaced the provider")
	}
}

func TestSetupOTel_ResourceNamesTheService(t *testing.T) {
	keepGlobals(t)

	orig := newServiceResourceFn
	t.Cleanup(func() { newServiceResourceFn = orig })
	var gotName, gotVersion string
	newServiceResourceFn = func(ctx context.Context, name, version string) (*resource.Resource, error) {
		gotName, gotVersion = name, version
		return orig(ctx, name, version)
	}

	setup(t, tracingConfig(1))

	if gotName != "user-service" || gotVersion != "v1.2.3" {
		t.Fatalf("resource built for %q %q", gotName, gotVersion)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected *sdktrace.TracerProvider, got %T", otel.GetTracerProvider())
	}
}

// Upstream traceparent headers carry the caller's sampling decision into
// the user and status spans.
func TestSetupOTel_PropagatesTraceparent(t *testing.T) {
	keepGlobals(t)
	setup(t, tracingConfig(1))

	ctx, span := otel.Tracer("services").Start(context.Background(), "UserService.Create")
	defer span.End()

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if !strings.HasPrefix(carrier.Get("traceparent"), "00-"+span.SpanContext().TraceID().String()) {
		t.Fatalf("traceparent = %q", carrier.Get("traceparent"))
	}

	remote := trace.SpanContextFromContext(otel.GetTextMapPropagator().Extract(context.Background(), carrier))
	if remote.TraceID() != span.SpanContext().TraceID() || !remote.IsSampled() {
		t.Fatalf("extracted span context = %+v", remote)
	}
}

func TestSetupOTel_SampleRatioZeroDropsRootSpans(t *testing.T) {
	keepGlobals(t)
	setup(t, tracingConfig(0))

	_, span := otel.Tracer("http").Start(context.Background(), "GET /api/v1/users/:id")
	defer span.End()
	if span.SpanContext().IsSampled() || span.IsRecording() {
		t.Fatalf("root span sampled with ratio 0")
	}
}

func TestSetupOTel_TLSEndpoint(t *testing.T) {
	keepGlobals(t)
	cfg := tracingConfig(1)
	cfg.Insecure = false
	setup(t, cfg)

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected *sdktrace.TracerProvider")
	}
}

func TestSetupOTel_FailuresLeaveGlobalsAlone(t *testing.T) {
	cases := map[string]func(t *testing.T){
		"exporter": func(t *testing.T) {
			orig := newOTLPExporterFn
			t.Cleanup(func() { newOTLPExporterFn = orig })
			newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
				return nil, errors.New("collector unreachable")
			}
		},
		"resource": func(t *testing.T) {
			orig := newServiceResourceFn
			t.Cleanup(func() { newServiceResourceFn = orig })
			newServiceResourceFn = func(context.Context, string, string) (*resource.Resource, error) {
				return nil, errors.New("no host info")
			}
		},
	}
	for name, stub := range cases {
		t.Run(name, func(t *testing.T) {
			keepGlobals(t)
			stub(t)
			tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()

			if _, err := SetupOTel(context.Background(), tracingConfig(1), "v0"); err == nil {
				t.Fatalf("expected %s error", name)
			}
			if otel.GetTracerProvider() != tp || otel.GetTextMapPropagator() != prop {
				t.Fatalf("globals replaced after %s failure", name)
			}
		})
	}
}

func TestSampler_Bounds(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{1, "ParentBased{root:AlwaysOnSampler"},
		{2, "ParentBased{root:AlwaysOnSampler"},
		{0, "ParentBased{root:AlwaysOffSampler"},
		{-1, "ParentBased{root:AlwaysOffSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}
	for _, tc := range cases {
		if got := sampler(tc.ratio).Description(); !strings.HasPrefix(got, tc.want) {
			t.Fatalf("sampler(%v) = %q; want prefix %q", tc.ratio, got, tc.want)
		}
	}
}

func TestClientOptions_Count(t *testing.T) {
	if n := len(clientOptions(config.OTELConfig{Endpoint: "otel:4317", Insecure: true})); n != 2 {
		t.Fatalf("insecure options = %d; want 2", n)
	}
	if n := len(clientOptions(config.OTELConfig{Endpoint: "otel:4317"})); n != 2 {
		t.Fatalf("tls options = %d; want 2", n)
	}
}
