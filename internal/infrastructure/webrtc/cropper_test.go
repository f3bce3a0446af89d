package webrtc

import (
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	geometry domain.Geometry
	mu       sync.Mutex
	chans    []chan ports.SourceFrame
}

func newFakeSource(geometry domain.Geometry) *fakeSource {
	return &fakeSource{geometry: geometry}
}

func (f *fakeSource) Geometry() domain.Geometry { return f.geometry }

func (f *fakeSource) Subscribe() (<-chan ports.SourceFrame, func()) {
	ch := make(chan ports.SourceFrame, 8)
	f.mu.Lock()
	f.chans = append(f.chans, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeSource) Close() {}

func (f *fakeSource) pushSolid(c color.RGBA) {
	img := image.NewRGBA(image.Rect(0, 0, f.geometry.Width, f.geometry.Height))
	draw := image.NewUniform(c)
	for y := 0; y < f.geometry.Height; y++ {
		for x := 0; x < f.geometry.Width; x++ {
			img.Set(x, y, draw.At(x, y))
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.chans {
		ch <- ports.SourceFrame{Image: img, CapturedAt: time.Now()}
	}
}

func TestCropper_WritesSampleForOverlappingRegion(t *testing.T) {
	src := newFakeSource(domain.Geometry{Width: 100, Height: 100})
	c, err := newCropper("viewer-1", src, domain.Rectangle{X: 10, Y: 10, Width: 20, Height: 20}, nil)
	require.NoError(t, err)
	defer c.Close()

	src.pushSolid(color.RGBA{R: 255, A: 255})
	time.Sleep(50 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotNil(t, c.lastGood, "expected a cropped frame after pushing an overlapping region")
}

func TestCropper_RetargetChangesFutureCrop(t *testing.T) {
	src := newFakeSource(domain.Geometry{Width: 100, Height: 100})
	c, err := newCropper("viewer-1", src, domain.Rectangle{X: 0, Y: 0, Width: 10, Height: 10}, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Retarget(domain.Rectangle{X: 50, Y: 50, Width: 10, Height: 10}))

	c.mu.Lock()
	rect := c.rect
	c.mu.Unlock()
	require.Equal(t, domain.Rectangle{X: 50, Y: 50, Width: 10, Height: 10}, rect)
}

func TestCropper_RetargetAfterCloseFails(t *testing.T) {
	src := newFakeSource(domain.Geometry{Width: 10, Height: 10})
	c, err := newCropper("viewer-1", src, domain.Rectangle{X: 0, Y: 0, Width: 5, Height: 5}, nil)
	require.NoError(t, err)

	c.Close()
	err = c.Retarget(domain.Rectangle{X: 1, Y: 1, Width: 2, Height: 2})
	require.ErrorIs(t, err, domain.ErrCropperFailed)
}

func TestCropper_FreezesLastGoodFrameWhenRegionLeavesBounds(t *testing.T) {
	src := newFakeSource(domain.Geometry{Width: 50, Height: 50})
	c, err := newCropper("viewer-1", src, domain.Rectangle{X: 0, Y: 0, Width: 10, Height: 10}, nil)
	require.NoError(t, err)
	defer c.Close()

	src.pushSolid(color.RGBA{G: 255, A: 255})
	time.Sleep(50 * time.Millisecond)

	c.mu.Lock()
	firstGood := c.lastGood
	c.mu.Unlock()
	require.NotNil(t, firstGood)

	require.NoError(t, c.Retarget(domain.Rectangle{X: 1000, Y: 1000, Width: 10, Height: 10}))
	time.Sleep(50 * time.Millisecond)
	src.pushSolid(color.RGBA{B: 255, A: 255})
	time.Sleep(50 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Same(t, firstGood, c.lastGood, "an out-of-bounds region must keep serving the last successfully cropped frame")
}
