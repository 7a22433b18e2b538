// Copyright 2026 The CloudSync Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"net/http"

	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	sdkotel "go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Provider owns the process's OpenTelemetry MeterProvider and the
// Prometheus registry it feeds. InstallProvider is called once from
// cmd at startup, matching the teacher's cmd/root.go pattern of wiring
// observability before the mount serves traffic.
type Provider struct {
	mp       *metric.MeterProvider
	registry *prometheus.Registry
}

// InstallProvider builds a MeterProvider backed by a fresh Prometheus
// registry and installs it as the global otel MeterProvider, so every
// idbMeter/fsOpsMeter-style package-level Meter() call in this package
// (and any future one) starts recording into it instead of the no-op
// default.
func InstallProvider() (*Provider, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("cloudsync"))
	mp := metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
	sdkotel.SetMeterProvider(mp)
	return &Provider{mp: mp, registry: registry}, nil
}

// Handler returns the http.Handler serving this provider's Prometheus
// exposition endpoint (conventionally mounted at /metrics).
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and releases the MeterProvider's resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}
