package cv

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"gocv.io/x/gocv"
)

// Extractor runs both models on each frame. Either model may be nil.
type Extractor struct {
	faces   *FaceDetector
	objects *ObjectDetector
}

// NewExtractor loads the configured models
func NewExtractor(face FaceConfig, obj ObjectConfig) (*Extractor, error) {
	fd, err := NewFaceDetector(face)
	if err != nil {
		return nil, err
	}
	od, err := NewObjectDetector(obj)
	if err != nil {
		fd.Close()
		return nil, err
	}
	return &Extractor{faces: fd, objects: od}, nil
}

// Extract decodes the JPEG and runs inference. The returned observation has
// no audio; audio is attached separately by the caller.
func (e *Extractor) Extract(jpeg []byte, ts time.Time) (detection.Observation, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return detection.Observation{}, fmt.Errorf("cv: decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return detection.Observation{}, ErrEmptyImage
	}

	obs := detection.Observation{Timestamp: ts}
	if e.faces != nil {
		obs.Faces = e.faces.Detect(img)
		detection.SortFaces(obs.Faces)
	}
	if e.objects != nil {
		obs.Objects = e.objects.Detect(img)
	}
	return obs, nil
}

// Close releases both models
func (e *Extractor) Close() error {
	var errs []error
	if e.faces != nil {
		errs = append(errs, e.faces.Close())
	}
	if e.objects != nil {
		errs = append(errs, e.objects.Close())
	}
	return errors.Join(errs...)
}

var _ detection.Extractor = (*Extractor)(nil)
