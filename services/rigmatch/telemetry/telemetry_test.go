// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_DisabledBridgesMetricsOnly(t *testing.T) {
	reg := promclient.NewRegistry()
	shutdown, err := Init(context.Background(), Config{ServiceName: "rigmatch-test", Registerer: reg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid(), "tracing is off by default")
	span.End()

	counter, err := otel.Meter("test").Int64Counter("rigmatch.test.calls")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if strings.Contains(f.GetName(), "rigmatch_test_calls") {
			found = true
		}
	}
	assert.True(t, found, "otel counter should be exported to the registry")
}

func TestInit_StdoutSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{
		ServiceName: "rigmatch-test",
		Enabled:     true,
		Stdout:      true,
		Writer:      &buf,
		Registerer:  promclient.NewRegistry(),
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "resolve.batch")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "resolve.batch")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("RIGMATCH_OTEL_ENABLED", "true")
	t.Setenv("RIGMATCH_OTEL_STDOUT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	t.Setenv("RIGMATCH_OTLP_TLS", "")

	cfg := FromEnv("rigmatch", "1.2.3")
	assert.True(t, cfg.Enabled)
	assert.False(t, cfg.Stdout)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.False(t, cfg.OTLPTLS)
}

func TestOTLPCredentials(t *testing.T) {
	assert.Equal(t, "insecure", otlpCredentials(false).Info().SecurityProtocol)
	assert.Equal(t, "tls", otlpCredentials(true).Info().SecurityProtocol)
}
