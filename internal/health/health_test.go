package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(ctx context.Context) CheckResult   { return CheckResult{Status: StatusHealthy} }
func unhealthy(ctx context.Context) CheckResult { return CheckResult{Status: StatusUnhealthy} }
func degraded(ctx context.Context) CheckResult  { return CheckResult{Status: StatusDegraded} }

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		crit   map[string]bool
		want   Status
	}{
		{"all healthy", map[string]Check{"a": healthy, "b": healthy}, nil, StatusHealthy},
		{"critical failure", map[string]Check{"a": healthy, "b": unhealthy}, map[string]bool{"b": true}, StatusUnhealthy},
		{"optional failure", map[string]Check{"a": healthy, "b": unhealthy}, nil, StatusDegraded},
		{"degraded", map[string]Check{"a": degraded}, map[string]bool{"a": true}, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.RegisterFunc(name, tt.crit[name], check)
			}
			c.Check(context.Background())
			assert.Equal(t, tt.want, c.OverallStatus())
		})
	}
}

func TestUncheckedCriticalIsUnknown(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("key_capture", true, healthy)
	assert.Equal(t, StatusUnknown, c.OverallStatus())
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})
	c.RegisterFunc("boom", false, func(ctx context.Context) CheckResult { panic("broken") })

	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check timed out", results["slow"].Message)
	assert.Equal(t, StatusUnhealthy, results["boom"].Status)
	assert.Equal(t, "broken", results["boom"].Error)
	assert.Equal(t, []string{"boom", "slow"}, c.Names())
}

func TestPingAndCustomCheck(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, StatusHealthy, PingCheck(func(context.Context) error { return nil })(ctx).Status)
	r := PingCheck(func(context.Context) error { return errors.New("locked") })(ctx)
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, "locked", r.Error)

	r = CustomCheck(func() (string, error) { return "12 shortcuts", nil })(ctx)
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, "12 shortcuts", r.Message)
}

func TestHandlers(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("key_capture", true, healthy)
	c.RegisterFunc("history", false, unhealthy)

	rec := httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Len(t, report.Components, 2)

	c.SetReady(true)
	rec = httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
