// Package cv runs the face and object models on camera frames with OpenCV
// and produces detection.Observation values.
package cv

import "errors"

// FaceConfig holds YuNet face detector configuration
type FaceConfig struct {
	ModelPath        string  `yaml:"model_path"`
	ConfidenceThresh float64 `yaml:"confidence"`
	NMSThresh        float64 `yaml:"nms"`
	InputWidth       int     `yaml:"input_width"`
	InputHeight      int     `yaml:"input_height"`
}

// DefaultFaceConfig returns production defaults for YuNet
func DefaultFaceConfig() FaceConfig {
	return FaceConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// ObjectConfig holds YOLOv8 detector configuration.
// The threshold here only prunes model output; class mapping applies the
// session's own confidence cutoff later.
type ObjectConfig struct {
	ModelPath        string  `yaml:"model_path"`
	ConfidenceThresh float32 `yaml:"confidence"`
	NMSThresh        float32 `yaml:"nms"`
	InputWidth       int     `yaml:"input_width"`
	InputHeight      int     `yaml:"input_height"`
}

// DefaultObjectConfig returns production defaults for YOLOv8n
func DefaultObjectConfig() ObjectConfig {
	return ObjectConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.4,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

var (
	ErrEmptyImage   = errors.New("cv: empty image")
	ErrModelMissing = errors.New("cv: model file not found")
)
