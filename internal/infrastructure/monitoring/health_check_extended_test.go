package monitoring

import (
	"context"
	"testing"
	"time"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/services"
)

func TestAddRegistryCheck_HealthyWhileRegistryResponds(t *testing.T) {
	registry := services.NewRegistry(nil, time.Hour, nil, nil)
	defer registry.Close()

	h := NewHealthChecker()
	h.AddRegistryCheck(registry, time.Minute, time.Second)

	status := h.CheckAll(context.Background())
	if status.Status != "healthy" {
		t.Fatalf("expected healthy, got %s: %v", status.Status, status.Checks)
	}
}

func TestAddBroadcasterPresenceCheck_UnhealthyUntilBroadcasterRegisters(t *testing.T) {
	registry := services.NewRegistry(nil, time.Hour, nil, nil)
	defer registry.Close()

	h := NewHealthChecker()
	h.AddBroadcasterPresenceCheck(registry, time.Minute, time.Second)

	status := h.CheckAll(context.Background())
	if status.Status != "unhealthy" {
		t.Fatalf("expected unhealthy before any broadcaster registers, got %s", status.Status)
	}

	if _, err := registry.RegisterBroadcaster(context.Background(), domain.TransportID("bt1"), domain.Geometry{Width: 1920, Height: 1080}); err != nil {
		t.Fatalf("RegisterBroadcaster: %v", err)
	}

	status = h.CheckAll(context.Background())
	if status.Status != "healthy" {
		t.Fatalf("expected healthy once a broadcaster is bound, got %s", status.Status)
	}
}
