package domain

// Rectangle is a sub-area of the source frame, in source-pixel units.
type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Geometry is the source frame's width x height in pixels.
type Geometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns width*height, used to detect degenerate rectangles.
func (r Rectangle) Area() int {
	return r.Width * r.Height
}

// Normalize clips r to geometry, matching the policy the Session
// Registry and Cropper both rely on. Region coordinates arrive over the
// wire as integer pixel offsets (see messages.go), so there is no
// fractional input left to round by the time it reaches here. It never
// mutates r.
func (r Rectangle) Normalize(geo Geometry) Rectangle {
	out := r

	if out.X < 0 {
		out.X = 0
	}
	if out.Y < 0 {
		out.Y = 0
	}
	if out.Width < 0 {
		out.Width = 0
	}
	if out.Height < 0 {
		out.Height = 0
	}

	if geo.Width > 0 && geo.Height > 0 {
		if out.X > geo.Width {
			out.X = geo.Width
		}
		if out.Y > geo.Height {
			out.Y = geo.Height
		}
		if out.X+out.Width > geo.Width {
			out.Width = geo.Width - out.X
		}
		if out.Y+out.Height > geo.Height {
			out.Height = geo.Height - out.Y
		}
	}

	return out
}

// SameDimensions reports whether two rectangles have equal width and
// height, the test Viewer Session uses to decide between an offset-only
// retarget and a track-replace.
func (r Rectangle) SameDimensions(other Rectangle) bool {
	return r.Width == other.Width && r.Height == other.Height
}
