// Package features derives per-tick signals (face count, eye openness, head
// pose, audio energy, object classes) from a raw detection.Observation.
package features

import (
	"math"

	"github.com/teslashibe/go-proctor/pkg/detection"
)

// Face mesh indices
var (
	leftEyeIdx  = []int{33, 7, 163, 144, 145, 153, 154, 155, 133, 173, 157, 158, 159, 160, 161, 246}
	rightEyeIdx = []int{362, 382, 381, 380, 374, 373, 390, 249, 263, 466, 388, 387, 386, 385, 384, 398}
)

const (
	meshNose       = 1
	meshLeftEye    = 33
	meshRightEye   = 362
	meshLeftMouth  = 61
	meshRightMouth = 291
)

// HeadPose is a normalized head orientation estimate. Yaw and pitch are
// ratios of the inter-eye distance; roll is in radians.
type HeadPose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Label is the strongest detection of one object class in a tick
type Label struct {
	Confidence float64        `json:"confidence"`
	Box        *detection.Box `json:"box,omitempty"`
}

// FeatureSet is the derived view of one observation. It is replaced wholesale
// every tick.
type FeatureSet struct {
	FaceCount    int  `json:"face_count"`
	FaceDetected bool `json:"face_detected"`

	// EyeAspectRatio is meaningful only when HasEAR is set
	EyeAspectRatio float64 `json:"eye_aspect_ratio"`
	HasEAR         bool    `json:"has_ear"`

	HeadPose HeadPose `json:"head_pose"`

	// AudioLevel is the RMS of the buffer, 0 when audio is unavailable
	AudioLevel     float64 `json:"audio_level"`
	AudioAvailable bool    `json:"audio_available"`

	// Labels holds mapped classes that passed the confidence cutoff
	Labels map[string]Label `json:"labels"`
}

// Compute derives features from obs. It never fails: malformed landmarks
// fall back to neutral values.
func Compute(obs detection.Observation, cfg Config) FeatureSet {
	fs := FeatureSet{
		FaceCount:      len(obs.Faces),
		FaceDetected:   len(obs.Faces) > 0,
		AudioAvailable: obs.HasAudio(),
		AudioLevel:     RMS(obs.Audio),
		Labels:         MapObjects(obs.Objects, cfg),
	}

	if len(obs.Faces) == 0 {
		return fs
	}
	primary := obs.Faces[0]
	switch {
	case len(primary.Landmarks) > 0:
		fs.EyeAspectRatio = EyeAspectRatio(primary.Landmarks, cfg.NeutralEAR)
		fs.HasEAR = true
		fs.HeadPose = MeshHeadPose(primary.Landmarks)
	case primary.Keypoints != nil:
		k := primary.Keypoints
		fs.HeadPose = headPose(k.Nose, k.LeftEye, k.RightEye, k.LeftMouth, k.RightMouth)
	}
	return fs
}

// EyeAspectRatio averages the ratio of both eyes. It returns neutral when an
// index is out of range or an eye has zero width.
func EyeAspectRatio(lm []detection.Point, neutral float64) float64 {
	left, ok := eyeRatio(lm, leftEyeIdx)
	if !ok {
		return neutral
	}
	right, ok := eyeRatio(lm, rightEyeIdx)
	if !ok {
		return neutral
	}
	return (left + right) / 2
}

func eyeRatio(lm []detection.Point, idx []int) (float64, bool) {
	for _, i := range idx[:6] {
		if i >= len(lm) {
			return 0, false
		}
	}
	e := func(n int) detection.Point { return lm[idx[n]] }

	vert := math.Abs(e(1).Y-e(5).Y) + math.Abs(e(2).Y-e(4).Y)
	hor := math.Abs(e(0).X - e(3).X)
	if hor == 0 {
		return 0, false
	}
	return vert / (2 * hor), true
}

// MeshHeadPose estimates head pose from face mesh landmarks. Missing
// landmarks yield a zero pose.
func MeshHeadPose(lm []detection.Point) HeadPose {
	for _, i := range []int{meshNose, meshLeftEye, meshRightEye, meshLeftMouth, meshRightMouth} {
		if i >= len(lm) {
			return HeadPose{}
		}
	}
	return headPose(lm[meshNose], lm[meshLeftEye], lm[meshRightEye], lm[meshLeftMouth], lm[meshRightMouth])
}

func headPose(nose, le, re, lm, rm detection.Point) HeadPose {
	eyeDist := math.Abs(re.X - le.X)
	if eyeDist == 0 {
		eyeDist = 1
	}

	eyeCenterY := (le.Y + re.Y) / 2
	mouthCenterY := (lm.Y + rm.Y) / 2

	return HeadPose{
		Yaw:   ((nose.X - le.X) - (re.X - nose.X)) / eyeDist,
		Pitch: (mouthCenterY - eyeCenterY) / eyeDist,
		Roll:  math.Atan2(re.Y-le.Y, re.X-le.X),
	}
}

// RMS returns the root mean square of samples, 0 for an empty buffer.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// MapObjects filters objects by confidence and maps them to classes,
// keeping the strongest detection per class.
func MapObjects(objects []detection.Object, cfg Config) map[string]Label {
	labels := make(map[string]Label)
	for _, o := range objects {
		if o.Confidence <= cfg.ConfidenceThreshold {
			continue
		}
		class := cfg.MapLabel(o.Label)
		if class == "" {
			continue
		}
		if cur, ok := labels[class]; ok && cur.Confidence >= o.Confidence {
			continue
		}
		labels[class] = Label{Confidence: o.Confidence, Box: o.Box}
	}
	return labels
}
