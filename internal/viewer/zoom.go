package viewer

import "math"

const (
	MinZoom  = 1.0
	MaxZoom  = 2.0
	ZoomStep = 0.15
)

// ClampZoom bounds z to [MinZoom, MaxZoom] and rounds it to two decimals.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return MinZoom
	}
	z = math.Max(MinZoom, math.Min(MaxZoom, z))
	return math.Round(z*100) / 100
}

// SetZoom sets the zoom factor, clamped.
func (s *Session) SetZoom(z float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = ClampZoom(z)
	return s.zoom
}

func (s *Session) ZoomIn() float64  { return s.stepZoom(ZoomStep) }
func (s *Session) ZoomOut() float64 { return s.stepZoom(-ZoomStep) }

func (s *Session) stepZoom(d float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = ClampZoom(s.zoom + d)
	return s.zoom
}
