package services

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func TestHealthService_CheckHealth(t *testing.T) {
	tests := []struct {
		name        string
		postgres    HealthCheck
		neo4j       HealthCheck
		wantStatus  string
		wantCrit    []string
		wantNonCrit []string
	}{
		{name: "all healthy", postgres: healthy, neo4j: healthy, wantStatus: "healthy"},
		{name: "optional dependency down", postgres: healthy, neo4j: failing, wantStatus: "degraded", wantNonCrit: []string{"neo4j"}},
		{name: "critical dependency down", postgres: failing, neo4j: healthy, wantStatus: "unhealthy", wantCrit: []string{"postgresql"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := NewHealthService(prometheus.NewRegistry(), testLogger())
			hs.AddCheck("postgresql", true, tt.postgres)
			hs.AddCheck("neo4j", false, tt.neo4j)

			status := hs.CheckHealth(context.Background())

			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, tt.wantCrit, status.Critical)
			assert.Equal(t, tt.wantNonCrit, status.NonCritical)
			assert.Len(t, status.Services, 2)
		})
	}
}

func TestHealthService_RecordsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	hs := NewHealthService(reg, testLogger())
	hs.AddCheck("redis_hot", true, healthy)
	hs.AddCheck("kafka", false, failing)

	hs.CheckHealth(context.Background())

	families, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "health_check_status" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "service" {
					got[l.GetValue()] = m.GetGauge().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"redis_hot": 1, "kafka": 0}, got)
}

func TestHealthService_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewHealthService(reg, testLogger())
	second := NewHealthService(reg, testLogger())

	assert.Same(t, first.healthCheckStatus, second.healthCheckStatus)
}
