package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type componentState struct {
	name    string
	healthy bool
	message string
}

func reset(states ...componentState) {
	healthChecker = newHealthChecker(DefaultCriticalComponents...)
	for _, s := range states {
		RegisterComponent(s.name, s.healthy, s.message)
	}
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		states     []componentState
		want       string
		components map[string]string
	}{
		{
			name:   "all healthy",
			states: []componentState{{"store", true, ""}, {"api", true, ""}},
			want:   StatusHealthy,
		},
		{
			name: "critical store down",
			states: []componentState{
				{"store", false, "database closed"},
				{"api", true, ""},
			},
			want:       StatusUnhealthy,
			components: map[string]string{"store": "unhealthy: database closed"},
		},
		{
			name: "collector down only degrades",
			states: []componentState{
				{"store", true, ""},
				{"api", true, ""},
				{"collector.compute", false, "cluster data model collection timed out"},
			},
			want: StatusDegraded,
		},
		{
			name: "critical failure wins over degraded",
			states: []componentState{
				{"telemetry.prometheus", false, "connection refused"},
				{"api", false, "address in use"},
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset(tt.states...)
			health := GetHealth()
			assert.Equal(t, tt.want, health.Status)
			assert.Len(t, health.Components, len(tt.states))
			for name, want := range tt.components {
				assert.Equal(t, want, health.Components[name])
			}
		})
	}
}

func TestSetCriticalAffectsReadiness(t *testing.T) {
	reset(componentState{"store", true, ""}, componentState{"api", true, ""})
	assert.Equal(t, StatusReady, GetReadiness().Status)

	SetCritical("collector.compute")
	readiness := GetReadiness()
	assert.Equal(t, StatusNotReady, readiness.Status)
	assert.Equal(t, "not registered", readiness.Components["collector.compute"])
	assert.Contains(t, readiness.Message, "collector.compute")

	UpdateComponent("collector.compute", false, "rebuild failed")
	assert.Equal(t, "not ready: rebuild failed", GetReadiness().Components["collector.compute"])
	assert.Equal(t, StatusUnhealthy, GetHealth().Status)

	UpdateComponent("collector.compute", true, "")
	assert.Equal(t, StatusReady, GetReadiness().Status)

	comp, ok := Component("collector.compute")
	require.True(t, ok)
	assert.True(t, comp.Healthy)
	assert.False(t, comp.Updated.IsZero())
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name    string
		states  []componentState
		handler http.HandlerFunc
		code    int
		status  string
	}{
		{"health ok", []componentState{{"store", true, ""}, {"api", true, ""}}, HealthHandler(), http.StatusOK, StatusHealthy},
		{"health degraded is 200", []componentState{{"store", true, ""}, {"compute.etcd a:2379", false, "refused"}}, HealthHandler(), http.StatusOK, StatusDegraded},
		{"health unhealthy is 503", []componentState{{"store", false, "closed"}}, HealthHandler(), http.StatusServiceUnavailable, StatusUnhealthy},
		{"ready", []componentState{{"store", true, ""}, {"api", true, ""}}, ReadyHandler(), http.StatusOK, StatusReady},
		{"not ready", []componentState{{"store", true, ""}}, ReadyHandler(), http.StatusServiceUnavailable, StatusNotReady},
		{"live", nil, LivenessHandler(), http.StatusOK, "alive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset(tt.states...)
			SetVersion("v0.3.0")

			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body["status"])
			assert.NotEmpty(t, body["uptime"])
		})
	}
}
