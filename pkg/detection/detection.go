// Package detection defines the contract between the inference extractors and
// the proctoring pipeline: one Observation per sampling tick.
package detection

import (
	"sort"
	"time"
)

// Point is a landmark position in image pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Box is an axis-aligned bounding box in image pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the box
func (b Box) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Area returns the area of the box
func (b Box) Area() float64 {
	return b.Width * b.Height
}

// Keypoints is the sparse five-point face layout produced by lightweight
// detectors. Left and right are image sides, not the subject's.
type Keypoints struct {
	LeftEye    Point `json:"left_eye"`
	RightEye   Point `json:"right_eye"`
	Nose       Point `json:"nose"`
	LeftMouth  Point `json:"left_mouth"`
	RightMouth Point `json:"right_mouth"`
}

// Face is one detected face.
type Face struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence,omitempty"`

	// Landmarks uses the 468/478-point face mesh indexing. Nil when the
	// extractor produced no mesh.
	Landmarks []Point `json:"landmarks,omitempty"`

	// Keypoints is used for head pose when Landmarks is absent.
	Keypoints *Keypoints `json:"keypoints,omitempty"`
}

// Object is one raw object-detection result, before label mapping.
type Object struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        *Box    `json:"box,omitempty"`
}

// Observation is everything the extractors saw during one sampling tick.
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	Faces     []Face    `json:"faces"`
	Objects   []Object  `json:"objects"`

	// Audio holds samples in [-1, 1]. Nil means audio is unavailable,
	// which is different from a silent buffer.
	Audio []float64 `json:"audio"`
}

// HasAudio reports whether the observation carries an audio buffer.
func (o Observation) HasAudio() bool {
	return o.Audio != nil
}

// SortFaces orders faces by box area, largest first. The first face is the
// one whose landmarks drive eye and head-pose features.
func SortFaces(faces []Face) {
	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Box.Area() > faces[j].Box.Area()
	})
}

// Source hands observations to the pipeline. Next must not block: it returns
// false when no fresh observation is ready, and the tick is skipped.
type Source interface {
	Next() (Observation, bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (Observation, bool)

// Next calls f.
func (f SourceFunc) Next() (Observation, bool) {
	return f()
}

// Extractor turns an encoded camera frame into an observation.
type Extractor interface {
	Extract(jpeg []byte, ts time.Time) (Observation, error)

	// Close releases model resources
	Close() error
}
