package cv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"gocv.io/x/gocv"
)

// FaceDetector wraps OpenCV's FaceDetectorYN
type FaceDetector struct {
	detector gocv.FaceDetectorYN
	config   FaceConfig
	mu       sync.Mutex
}

// NewFaceDetector loads the YuNet model
func NewFaceDetector(cfg FaceConfig) (*FaceDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelMissing, cfg.ModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &FaceDetector{detector: detector, config: cfg}, nil
}

// Detect finds faces in a decoded image. Boxes and keypoints are in pixels.
func (d *FaceDetector) Detect(img gocv.Mat) []detection.Face {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	out := gocv.NewMat()
	defer out.Close()
	d.detector.Detect(img, &out)

	faces := make([]detection.Face, 0, out.Rows())
	for r := 0; r < out.Rows(); r++ {
		// 0-3 box, 4-13 five (x,y) keypoints, 14 score.
		// Keypoint order is the subject's right eye, left eye, nose,
		// right mouth corner, left mouth corner.
		at := func(c int) float64 { return float64(out.GetFloatAt(r, c)) }
		pt := func(c int) detection.Point { return detection.Point{X: at(c), Y: at(c + 1)} }

		faces = append(faces, detection.Face{
			Box:        detection.Box{X: at(0), Y: at(1), Width: at(2), Height: at(3)},
			Confidence: at(14),
			Keypoints: &detection.Keypoints{
				LeftEye:    pt(4),
				RightEye:   pt(6),
				Nose:       pt(8),
				LeftMouth:  pt(10),
				RightMouth: pt(12),
			},
		})
	}
	return faces
}

// Close releases the detector resources
func (d *FaceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
