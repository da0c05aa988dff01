package otel

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Resource 描述产生 telemetry 数据的实体，会附加到所有 spans 和 metrics 上
//
//	Resource
//	    ↓
//	TracerProvider / MeterProvider
//	    ├── Sampler
//	    ├── BatchSpanProcessor / PeriodicReader
//	    └── OTLP gRPC Exporter
//	         ↓
//	OpenTelemetry Collector
func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := append(
		GetServiceAttributes(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment),
		semconv.TelemetrySDKLanguageGo,
	)

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithOSType(),
		resource.WithOSDescription(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// GetServiceAttributes 服务级属性，server 和 worker 用不同的 ServiceName 区分
func GetServiceAttributes(serviceName, serviceVersion, environment string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.DeploymentEnvironment(environment),
		semconv.ServiceNamespace("skincoach"),
	}
	if serviceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(serviceVersion))
	}
	return attrs
}

// normalizeEndpoint gRPC exporter 只接受 host:port
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimRight(endpoint, "/")
}

// withDefaults 补齐采样率和环境；development 全量采样
func (cfg Config) withDefaults() Config {
	if cfg.SampleRatio <= 0 || cfg.SampleRatio > 1 {
		cfg.SampleRatio = 0.1
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Environment == "development" {
		cfg.SampleRatio = 1
	}
	return cfg
}
