package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyHandler(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Check
		wantStatus Status
		wantCode   int
	}{
		{
			name:       "all up",
			checks:     map[string]Check{"index": Static(StatusUp, "")},
			wantStatus: StatusUp,
			wantCode:   http.StatusOK,
		},
		{
			name: "optional dependency degraded",
			checks: map[string]Check{
				"index": Static(StatusUp, ""),
				"redis": Ping(func(context.Context) error { return errors.New("refused") }, StatusDegraded),
			},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusOK,
		},
		{
			name: "required dependency down",
			checks: map[string]Check{
				"postgres": Ping(func(context.Context) error { return errors.New("refused") }, StatusDown),
				"redis":    Ping(func(context.Context) error { return nil }, StatusDegraded),
			},
			wantStatus: StatusDown,
			wantCode:   http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			rec := httptest.NewRecorder()
			c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var report Report
			if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
				t.Fatal(err)
			}
			if report.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", report.Status, tt.wantStatus)
			}
			if len(report.Components) != len(tt.checks) {
				t.Errorf("components = %d", len(report.Components))
			}
		})
	}
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d", rec.Code)
	}
}
