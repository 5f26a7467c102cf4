package features

import (
	"math"
	"testing"

	"github.com/teslashibe/go-proctor/pkg/detection"
)

// meshFace builds a 478-point mesh with both eyes of the given vertical
// opening over a 10px width, and a frontal pose.
func meshFace(opening float64) []detection.Point {
	lm := make([]detection.Point, 478)
	setEye := func(idx []int, x0 float64) {
		lm[idx[0]] = detection.Point{X: x0, Y: 100}
		lm[idx[3]] = detection.Point{X: x0 + 10, Y: 100}
		lm[idx[1]] = detection.Point{X: x0 + 3, Y: 100 - opening/2}
		lm[idx[5]] = detection.Point{X: x0 + 3, Y: 100 + opening/2}
		lm[idx[2]] = detection.Point{X: x0 + 6, Y: 100 - opening/2}
		lm[idx[4]] = detection.Point{X: x0 + 6, Y: 100 + opening/2}
	}
	setEye(leftEyeIdx, 80)
	setEye(rightEyeIdx, 150)

	// Index 33 and 362 double as eye corners for head pose.
	lm[meshLeftEye] = detection.Point{X: 80, Y: 100}
	lm[meshRightEye] = detection.Point{X: 150, Y: 100}
	lm[meshNose] = detection.Point{X: 115, Y: 130}
	lm[meshLeftMouth] = detection.Point{X: 95, Y: 160}
	lm[meshRightMouth] = detection.Point{X: 135, Y: 160}
	return lm
}

func TestEyeAspectRatio(t *testing.T) {
	tests := []struct {
		name    string
		opening float64
		want    float64
	}{
		{"open", 3, 0.3},
		{"half", 2, 0.2},
		{"closed", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lm := make([]detection.Point, 478)
			for _, idx := range [][]int{leftEyeIdx, rightEyeIdx} {
				lm[idx[0]] = detection.Point{X: 0}
				lm[idx[3]] = detection.Point{X: 10}
				lm[idx[1]] = detection.Point{Y: 0}
				lm[idx[5]] = detection.Point{Y: tt.opening}
				lm[idx[2]] = detection.Point{Y: 0}
				lm[idx[4]] = detection.Point{Y: tt.opening}
			}
			got := EyeAspectRatio(lm, 0.3)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EyeAspectRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEyeAspectRatioMalformed(t *testing.T) {
	tests := []struct {
		name string
		lm   []detection.Point
	}{
		{"too few landmarks", make([]detection.Point, 100)},
		{"zero width eyes", make([]detection.Point, 478)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EyeAspectRatio(tt.lm, 0.42); got != 0.42 {
				t.Errorf("Expected neutral 0.42, got %v", got)
			}
		})
	}
}

func TestMeshHeadPose(t *testing.T) {
	lm := make([]detection.Point, 478)
	lm[meshLeftEye] = detection.Point{X: 100, Y: 100}
	lm[meshRightEye] = detection.Point{X: 200, Y: 100}
	lm[meshNose] = detection.Point{X: 150, Y: 140}
	lm[meshLeftMouth] = detection.Point{X: 120, Y: 180}
	lm[meshRightMouth] = detection.Point{X: 180, Y: 180}

	pose := MeshHeadPose(lm)
	if math.Abs(pose.Yaw) > 1e-9 {
		t.Errorf("Expected yaw 0 for centered nose, got %v", pose.Yaw)
	}
	if math.Abs(pose.Pitch-0.8) > 1e-9 {
		t.Errorf("Expected pitch 0.8, got %v", pose.Pitch)
	}
	if math.Abs(pose.Roll) > 1e-9 {
		t.Errorf("Expected roll 0, got %v", pose.Roll)
	}

	// Nose shifted toward the right eye
	lm[meshNose].X = 180
	pose = MeshHeadPose(lm)
	if math.Abs(pose.Yaw-0.6) > 1e-9 {
		t.Errorf("Expected yaw 0.6, got %v", pose.Yaw)
	}

	// Tilted eye line
	lm[meshRightEye].Y = 200
	pose = MeshHeadPose(lm)
	if math.Abs(pose.Roll-math.Pi/4) > 1e-9 {
		t.Errorf("Expected roll pi/4, got %v", pose.Roll)
	}
}

func TestMeshHeadPoseMissing(t *testing.T) {
	pose := MeshHeadPose(make([]detection.Point, 10))
	if pose != (HeadPose{}) {
		t.Errorf("Expected zero pose, got %+v", pose)
	}
}

func TestHeadPoseZeroEyeDistance(t *testing.T) {
	p := detection.Point{X: 5, Y: 5}
	pose := headPose(p, p, p, p, p)
	if math.IsNaN(pose.Yaw) || math.IsNaN(pose.Pitch) || math.IsInf(pose.Yaw, 0) {
		t.Errorf("Expected finite pose, got %+v", pose)
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"nil", nil, 0},
		{"empty", []float64{}, 0},
		{"silence", []float64{0, 0, 0}, 0},
		{"constant", []float64{0.5, -0.5, 0.5, -0.5}, 0.5},
		{"full scale", []float64{1, -1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RMS(tt.samples); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RMS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapLabel(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		label string
		want  string
	}{
		{"cell phone", ClassPhone},
		{"Mobile Phone", ClassPhone},
		{"book", ClassBook},
		{"notebook", ClassBook}, // "book" rule is checked first
		{"laptop", ClassDevice},
		{"keyboard", ClassDevice},
		{"mouse", ClassDevice},
		{"paper", ClassNotes},
		{"sticky note", ClassNotes},
		{"person", ClassUnauthorizedPerson},
		{"cup", ""},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := cfg.MapLabel(tt.label); got != tt.want {
				t.Errorf("MapLabel(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestMapObjects(t *testing.T) {
	cfg := DefaultConfig()
	box := &detection.Box{X: 1, Y: 2, Width: 3, Height: 4}
	objects := []detection.Object{
		{Label: "cell phone", Confidence: 0.7},
		{Label: "cell phone", Confidence: 0.9, Box: box},
		{Label: "book", Confidence: 0.6}, // at threshold, dropped
		{Label: "cup", Confidence: 0.99},
	}

	labels := MapObjects(objects, cfg)
	if len(labels) != 1 {
		t.Fatalf("Expected 1 class, got %v", labels)
	}
	phone := labels[ClassPhone]
	if phone.Confidence != 0.9 || phone.Box != box {
		t.Errorf("Expected strongest phone detection, got %+v", phone)
	}
}

func TestCompute(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("no faces no audio", func(t *testing.T) {
		fs := Compute(detection.Observation{}, cfg)
		if fs.FaceDetected || fs.FaceCount != 0 {
			t.Errorf("Expected no face, got %+v", fs)
		}
		if fs.HasEAR {
			t.Error("EAR should be undefined without landmarks")
		}
		if fs.AudioAvailable || fs.AudioLevel != 0 {
			t.Errorf("Expected unavailable audio at level 0, got %+v", fs)
		}
	})

	t.Run("face without landmarks", func(t *testing.T) {
		obs := detection.Observation{Faces: []detection.Face{{}}}
		fs := Compute(obs, cfg)
		if !fs.FaceDetected || fs.HasEAR {
			t.Errorf("Expected detected face without EAR, got %+v", fs)
		}
		if fs.HeadPose != (HeadPose{}) {
			t.Errorf("Expected zero pose, got %+v", fs.HeadPose)
		}
	})

	t.Run("mesh face", func(t *testing.T) {
		obs := detection.Observation{
			Faces: []detection.Face{{Landmarks: meshFace(4)}, {}},
			Audio: []float64{0.1, -0.1},
		}
		fs := Compute(obs, cfg)
		if fs.FaceCount != 2 {
			t.Errorf("Expected 2 faces, got %d", fs.FaceCount)
		}
		if !fs.HasEAR || math.Abs(fs.EyeAspectRatio-0.4) > 1e-9 {
			t.Errorf("Expected EAR 0.4, got %v (has=%v)", fs.EyeAspectRatio, fs.HasEAR)
		}
		if !fs.AudioAvailable || math.Abs(fs.AudioLevel-0.1) > 1e-9 {
			t.Errorf("Expected audio level 0.1, got %v", fs.AudioLevel)
		}
	})

	t.Run("keypoint face", func(t *testing.T) {
		obs := detection.Observation{Faces: []detection.Face{{
			Keypoints: &detection.Keypoints{
				LeftEye:    detection.Point{X: 100, Y: 100},
				RightEye:   detection.Point{X: 200, Y: 100},
				Nose:       detection.Point{X: 190, Y: 140},
				LeftMouth:  detection.Point{X: 120, Y: 150},
				RightMouth: detection.Point{X: 180, Y: 150},
			},
		}}}
		fs := Compute(obs, cfg)
		if fs.HasEAR {
			t.Error("Keypoints alone should not produce EAR")
		}
		if math.Abs(fs.HeadPose.Yaw-0.8) > 1e-9 {
			t.Errorf("Expected yaw 0.8, got %v", fs.HeadPose.Yaw)
		}
	})
}

func TestSmootherConvergence(t *testing.T) {
	s := NewSmoother(0.15)
	const target = 0.02

	var v float64
	for i := 0; i < 60; i++ {
		v = s.Update(target)
	}
	if math.Abs(v-target) > 1e-5 {
		t.Errorf("Expected convergence to %v, got %v", target, v)
	}

	// Monotonic approach from below
	s.Reset()
	prev := s.Value()
	for i := 0; i < 10; i++ {
		v := s.Update(target)
		if v <= prev || v > target {
			t.Fatalf("step %d: value %v not monotonic toward %v", i, v, target)
		}
		prev = v
	}
}

func TestSmooth(t *testing.T) {
	got := Smooth(1.0, 0.0, 0.15)
	if math.Abs(got-0.85) > 1e-12 {
		t.Errorf("Smooth() = %v, want 0.85", got)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}

	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for threshold > 1")
	}

	cfg = DefaultConfig()
	cfg.Rules = append(cfg.Rules, LabelRule{Class: "x"})
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for rule without keywords")
	}
}
