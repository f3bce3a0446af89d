package eventhub

import (
	"testing"
	"time"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_EnqueueDeliversInOrder(t *testing.T) {
	h := NewHub(50*time.Millisecond, nil)
	defer h.Close()

	ch := h.Subscribe("t1", domain.RoleViewer)

	require.NoError(t, h.Enqueue("t1", ports.OutboundMessage{Type: "a"}))
	require.NoError(t, h.Enqueue("t1", ports.OutboundMessage{Type: "b"}))

	first := <-ch
	second := <-ch
	assert.Equal(t, "a", first.Type)
	assert.Equal(t, "b", second.Type)
}

func TestHub_EnqueueUnknownTransport(t *testing.T) {
	h := NewHub(50*time.Millisecond, nil)
	defer h.Close()

	err := h.Enqueue("ghost", ports.OutboundMessage{Type: "x"})
	assert.ErrorIs(t, err, domain.ErrUnknownViewer)
}

func TestHub_EnqueueFullQueueReportsBackpressure(t *testing.T) {
	h := NewHub(50*time.Millisecond, nil)
	defer h.Close()

	h.Subscribe("t1", domain.RoleViewer)

	var lastErr error
	for i := 0; i < domain.OutboundQueueCapacity+1; i++ {
		lastErr = h.Enqueue("t1", ports.OutboundMessage{Type: "x"})
	}

	assert.ErrorIs(t, lastErr, domain.ErrOutboundQueueFull)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(50*time.Millisecond, nil)
	defer h.Close()

	ch := h.Subscribe("t1", domain.RoleViewer)
	h.Unsubscribe("t1")

	_, open := <-ch
	assert.False(t, open)

	err := h.Enqueue("t1", ports.OutboundMessage{Type: "x"})
	assert.ErrorIs(t, err, domain.ErrUnknownViewer)
}

func TestHub_BroadcastOnlyReachesMatchingRole(t *testing.T) {
	h := NewHub(50*time.Millisecond, nil)
	defer h.Close()

	viewerCh := h.Subscribe("v1", domain.RoleViewer)
	adminCh := h.Subscribe("a1", domain.RoleAdmin)

	h.Broadcast(domain.RoleAdmin, ports.OutboundMessage{Type: "clients-update"})

	select {
	case msg := <-adminCh:
		assert.Equal(t, "clients-update", msg.Type)
	case <-time.After(time.Second):
		t.Fatal("expected admin subscriber to receive broadcast")
	}

	select {
	case <-viewerCh:
		t.Fatal("viewer subscriber should not receive an admin-only broadcast")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_NotifyRegionChanged_CoalescesToBroadcaster(t *testing.T) {
	h := NewHub(30*time.Millisecond, nil)
	defer h.Close()

	broadcasterCh := h.Subscribe("b1", domain.RoleBroadcaster)

	for i := 0; i < 20; i++ {
		h.NotifyRegionChanged("b1", "viewer-1", domain.Rectangle{X: i, Y: 0, Width: 100, Height: 100})
	}

	select {
	case msg := <-broadcasterCh:
		assert.Equal(t, "client-region-updated", msg.Type)
		event, ok := msg.Payload.(domain.RegionChangedEvent)
		require.True(t, ok)
		assert.Equal(t, 19, event.Region.X, "only the last region in the window should survive coalescing")
	case <-time.After(time.Second):
		t.Fatal("expected a coalesced region update")
	}

	select {
	case <-broadcasterCh:
		t.Fatal("expected exactly one coalesced message for this window, got a second")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestHub_NotifyRegionChanged_AdminFloodStaysWithinBudget(t *testing.T) {
	h := NewHub(50*time.Millisecond, nil)
	defer h.Close()

	broadcasterCh := h.Subscribe("b1", domain.RoleBroadcaster)

	deadline := time.After(500 * time.Millisecond)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ticker.C:
				h.NotifyRegionChanged("b1", "viewer-1", domain.Rectangle{X: 1, Y: 1, Width: 10, Height: 10})
			case <-deadline:
				return
			}
		}
	}()
	<-done

	received := 0
	timeout := time.After(200 * time.Millisecond)
drain:
	for {
		select {
		case <-broadcasterCh:
			received++
		case <-timeout:
			break drain
		}
	}

	assert.LessOrEqual(t, received, 12, "a sustained flood should be coalesced to roughly one message per window")
}
