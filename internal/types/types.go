package types

import "image"

// Embedding is the fixed-length face encoding produced by an engine (128-d for dlib).
type Embedding []float64

// BoundingBox is a face location in source image pixels.
type BoundingBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Rect converts the box to an image.Rectangle (Min = left/top, Max = right/bottom).
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// FaceResult is one face detected by an engine, in detection order.
type FaceResult struct {
	Loc BoundingBox `json:"loc"`
	Vec Embedding   `json:"vec"`
}

// Observation is a face seen during a scan pass, kept for the tag-resolution pass.
type Observation struct {
	Path string      `json:"path"`
	Loc  BoundingBox `json:"loc"`
	Vec  Embedding   `json:"vec"`
}

// ImageTask represents a single photo sent to an engine for processing
type ImageTask struct {
	Index int
	Path  string
}
