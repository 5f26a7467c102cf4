package cv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"gocv.io/x/gocv"
)

// ObjectDetector runs a YOLOv8 ONNX model
type ObjectDetector struct {
	net       gocv.Net
	config    ObjectConfig
	mu        sync.Mutex
	inputSize image.Point
}

// NewObjectDetector loads the YOLO model
func NewObjectDetector(cfg ObjectConfig) (*ObjectDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelMissing, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("cv: failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &ObjectDetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect returns labelled objects in pixel coordinates
func (d *ObjectDetector) Detect(img gocv.Mat) []detection.Object {
	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	return d.parse(output, float32(img.Cols()), float32(img.Rows()))
}

// parse decodes the [1, 84, 8400] YOLOv8 tensor: 4 box values then 80
// class scores per candidate, stored column-major.
func (d *ObjectDetector) parse(output gocv.Mat, imgW, imgH float32) []detection.Object {
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil
	}
	fields, candidates := sizes[1], sizes[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil
	}

	var (
		boxes       []image.Rectangle
		confidences []float32
		classIDs    []int
	)
	sx := imgW / float32(d.config.InputWidth)
	sy := imgH / float32(d.config.InputHeight)

	for i := 0; i < candidates; i++ {
		best, bestID := float32(0), 0
		for c := 4; c < fields; c++ {
			if s := data[c*candidates+i]; s > best {
				best, bestID = s, c-4
			}
		}
		if best < d.config.ConfidenceThresh {
			continue
		}

		cx, cy := data[i], data[candidates+i]
		w, h := data[2*candidates+i], data[3*candidates+i]
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		confidences = append(confidences, best)
		classIDs = append(classIDs, bestID)
	}
	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)
	objects := make([]detection.Object, 0, len(indices))
	for _, idx := range indices {
		r := boxes[idx]
		objects = append(objects, detection.Object{
			Label:      ClassName(classIDs[idx]),
			Confidence: float64(confidences[idx]),
			Box: &detection.Box{
				X:      float64(r.Min.X),
				Y:      float64(r.Min.Y),
				Width:  float64(r.Dx()),
				Height: float64(r.Dy()),
			},
		})
	}
	return objects
}

// Close releases the network
func (d *ObjectDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// ClassName returns the COCO label for id, or "unknown".
func ClassName(id int) string {
	if id < 0 || id >= len(cocoClasses) {
		return "unknown"
	}
	return cocoClasses[id]
}

var cocoClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
