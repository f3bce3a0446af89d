package webrtc

import (
	"image"
	"image/color"
	"sync"
	"time"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"
)

// sink is one Cropper's frame channel, fanned out to independently of
// every other subscriber's delivery rate.
//
// Grounded directly on the SampleBroadcaster/sink pattern in
// other_examples/Kitonae-WHEP's broadcaster.go: each subscriber gets its
// own small buffered channel, and a full channel means that subscriber
// drops the frame rather than stalling the source loop.
type sink struct {
	ch   chan ports.SourceFrame
	quit chan struct{}
}

// SyntheticSource is the built-in SourceProvider: it has no real capture
// device behind it (binding one is explicitly out of scope, see
// SPEC_FULL.md's Non-goals) and instead paints a moving test pattern at
// a fixed geometry, giving the broadcaster binary something real to crop
// and every Cropper something real to subscribe to.
type SyntheticSource struct {
	geometry domain.Geometry

	mu    sync.Mutex
	sinks map[*sink]struct{}

	stopCh chan struct{}
	once   sync.Once
}

// NewSyntheticSource starts painting frames at fps into frames sized to
// geometry.
func NewSyntheticSource(geometry domain.Geometry, fps int) *SyntheticSource {
	if fps <= 0 {
		fps = 30
	}
	s := &SyntheticSource{
		geometry: geometry,
		sinks:    make(map[*sink]struct{}),
		stopCh:   make(chan struct{}),
	}
	go s.run(time.Second / time.Duration(fps))
	return s
}

// Geometry returns the fixed width x height of every frame this source
// produces.
func (s *SyntheticSource) Geometry() domain.Geometry {
	return s.geometry
}

// Subscribe registers a new sink and returns its receive channel plus an
// unsubscribe function that stops delivery and releases the sink.
func (s *SyntheticSource) Subscribe() (<-chan ports.SourceFrame, func()) {
	sk := &sink{
		ch:   make(chan ports.SourceFrame, 1),
		quit: make(chan struct{}),
	}

	s.mu.Lock()
	s.sinks[sk] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.sinks, sk)
		s.mu.Unlock()
		close(sk.quit)
	}

	return sk.ch, unsubscribe
}

// Close stops frame generation and every sink's delivery.
func (s *SyntheticSource) Close() {
	s.once.Do(func() {
		close(s.stopCh)
	})
}

func (s *SyntheticSource) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var phase int
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			frame := ports.SourceFrame{
				Image:      s.paint(phase),
				CapturedAt: time.Now(),
			}
			phase++
			s.broadcast(frame)
		}
	}
}

// paint renders a horizontally-scrolling vertical bar pattern, enough to
// make a Cropper's output visibly track a moving source without needing
// a real capture device.
func (s *SyntheticSource) paint(phase int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.geometry.Width, s.geometry.Height))
	barWidth := 40
	offset := (phase * 4) % (barWidth * 2)

	for y := 0; y < s.geometry.Height; y++ {
		for x := 0; x < s.geometry.Width; x++ {
			if ((x+offset)/barWidth)%2 == 0 {
				img.Set(x, y, color.RGBA{R: 30, G: 144, B: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{R: 10, G: 10, B: 10, A: 255})
			}
		}
	}
	return img
}

// broadcast fans frame out to every sink, dropping it for any sink whose
// channel is already full rather than blocking the whole source loop on
// one slow Cropper.
func (s *SyntheticSource) broadcast(frame ports.SourceFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sk := range s.sinks {
		select {
		case sk.ch <- frame:
		default:
		}
	}
}

var _ ports.SourceProvider = (*SyntheticSource)(nil)
