package monitoring

import (
	"context"
	"testing"
	"time"
)

func TestHealthChecker_CheckAll_AllHealthy(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("ok", func(ctx context.Context) (bool, error) {
		return true, nil
	}, time.Minute, time.Second)

	status := h.CheckAll(context.Background())
	if status.Status != "healthy" {
		t.Fatalf("expected healthy, got %s", status.Status)
	}
	if status.Checks["ok"] != "healthy" {
		t.Fatalf("expected check 'ok' to report healthy, got %q", status.Checks["ok"])
	}
}

func TestHealthChecker_CheckAll_OneUnhealthyFailsAll(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("ok", func(ctx context.Context) (bool, error) {
		return true, nil
	}, time.Minute, time.Second)
	h.AddCheck("broken", func(ctx context.Context) (bool, error) {
		return false, nil
	}, time.Minute, time.Second)

	status := h.CheckAll(context.Background())
	if status.Status != "unhealthy" {
		t.Fatalf("expected unhealthy, got %s", status.Status)
	}
}

func TestHealthChecker_IsReady(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("ok", func(ctx context.Context) (bool, error) {
		return true, nil
	}, time.Minute, time.Second)

	if !h.IsReady(context.Background()) {
		t.Fatal("expected IsReady to be true")
	}
}
