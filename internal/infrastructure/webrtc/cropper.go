package webrtc

import (
	"image"
	"image/draw"
	"sync"
	"time"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

// frameInterval is the 30fps cap every Cropper enforces on its own
// output regardless of how fast the source provider produces frames.
const frameInterval = time.Second / 30

// cropper produces one derived track per viewer by cropping the shared
// source frame to the viewer's current region on every tick, with a
// drop-old policy when frames arrive faster than the output cap and a
// frozen-last-good-frame fallback when the current region has no
// overlap with the source frame.
//
// There is no real video encoder in this stack (none of the example
// repositories carry one), so WriteSample here carries raw cropped RGBA
// bytes rather than an encoded bitstream; see the Non-goals note in
// SPEC_FULL.md and DESIGN.md for the reasoning. The cropping math itself
// -- sub-image extraction via image/draw -- is the part this repository
// actually implements and tests.
type cropper struct {
	mu       sync.Mutex
	rect     domain.Rectangle
	closed   bool
	lastGood *image.RGBA

	track       *webrtc.TrackLocalStaticSample
	unsubscribe func()
	stopCh      chan struct{}
	scratch     *image.RGBA // reused across frames of the same dimensions to avoid per-frame allocation

	logger *zap.SugaredLogger
}

// NewCropper starts cropping frames from source for a viewer whose
// initial region is rect.
func NewCropper(clientID domain.ClientID, source ports.SourceProvider, rect domain.Rectangle, logger *zap.SugaredLogger) (ports.Cropper, error) {
	return newCropper(clientID, source, rect, logger)
}

// newCropper is the concrete constructor the package's own tests use
// directly, to reach the struct instead of just the ports.Cropper
// interface.
func newCropper(clientID domain.ClientID, source ports.SourceProvider, rect domain.Rectangle, logger *zap.SugaredLogger) (*cropper, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: "video/x-raw"},
		"crop-"+string(clientID),
		"vistahub-broadcaster",
	)
	if err != nil {
		return nil, err
	}

	frames, unsubscribe := source.Subscribe()

	c := &cropper{
		rect:        rect,
		track:       track,
		unsubscribe: unsubscribe,
		stopCh:      make(chan struct{}),
		logger:      logger,
	}

	go c.run(frames)
	return c, nil
}

// Track returns the derived track this cropper writes samples to.
func (c *cropper) Track() ports.CroppedTrack {
	return c.track
}

// Retarget changes the crop region. It never replaces the underlying
// track -- region changes only affect which pixels the next frame crops,
// matching the spec's "no track churn on same-dimension retarget" rule;
// this implementation never churns the track on any retarget, same- or
// different-dimensions, because a raw-sample track has no codec
// resolution to renegotiate.
func (c *cropper) Retarget(rect domain.Rectangle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrCropperFailed
	}
	c.rect = rect
	return nil
}

// Close stops the crop loop and releases the source subscription.
func (c *cropper) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopCh)
	c.unsubscribe()
}

func (c *cropper) run(frames <-chan ports.SourceFrame) {
	var lastWrite time.Time

	for {
		select {
		case <-c.stopCh:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if time.Since(lastWrite) < frameInterval {
				continue
			}

			src, ok := frame.Image.(*image.RGBA)
			if !ok || src == nil {
				continue
			}

			if err := c.writeCroppedFrame(src); err != nil {
				if c.logger != nil {
					c.logger.Warnw("cropper failed to write sample", "error", err)
				}
				continue
			}
			lastWrite = time.Now()
		}
	}
}

// writeCroppedFrame crops src to the current region and writes it as a
// sample. When the region has no overlap with src's bounds, it reuses
// the last successfully cropped frame instead of producing an empty one.
func (c *cropper) writeCroppedFrame(src *image.RGBA) error {
	c.mu.Lock()
	rect := c.rect
	c.mu.Unlock()

	cropRect := image.Rect(rect.X, rect.Y, rect.X+rect.Width, rect.Y+rect.Height).Intersect(src.Bounds())

	var out *image.RGBA
	if cropRect.Empty() {
		c.mu.Lock()
		out = c.lastGood
		c.mu.Unlock()
		if out == nil {
			return nil
		}
	} else {
		c.mu.Lock()
		dst := c.scratch
		bounds := image.Rect(0, 0, cropRect.Dx(), cropRect.Dy())
		if dst == nil || dst.Bounds() != bounds {
			dst = image.NewRGBA(bounds)
			c.scratch = dst
		}
		c.mu.Unlock()

		draw.Draw(dst, dst.Bounds(), src, cropRect.Min, draw.Src)

		out = image.NewRGBA(dst.Bounds())
		copy(out.Pix, dst.Pix)

		c.mu.Lock()
		c.lastGood = out
		c.mu.Unlock()
	}

	return c.track.WriteSample(media.Sample{
		Data:     out.Pix,
		Duration: frameInterval,
	})
}

var _ ports.Cropper = (*cropper)(nil)
