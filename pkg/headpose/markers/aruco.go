package markers

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// solvePnPIPPESquare is cv::SOLVEPNP_IPPE_SQUARE, the solver OpenCV uses
// for single square markers.
const solvePnPIPPESquare = 7

// ArucoDetector uses OpenCV's ArUco module for detection and SolvePnP for pose.
type ArucoDetector struct {
	detector gocv.ArucoDetector
	config   Config
	mu       sync.Mutex // Protects the OpenCV detector
}

// NewAruco creates an ArUco detector for the configured dictionary.
func NewAruco(cfg Config) (*ArucoDetector, error) {
	var dict gocv.ArucoDictionary
	switch cfg.Dictionary {
	case Dict4x4_100, "":
		dict = gocv.GetPredefinedDictionary(gocv.ArucoDict4x4_100)
	case Dict5x5_100:
		dict = gocv.GetPredefinedDictionary(gocv.ArucoDict5x5_100)
	default:
		return nil, fmt.Errorf("unknown marker dictionary: %s", cfg.Dictionary)
	}
	if cfg.MarkerLength <= 0 {
		cfg.MarkerLength = DefaultConfig().MarkerLength
	}
	if cfg.Resolution <= 0 || cfg.Resolution > 1 {
		cfg.Resolution = 1
	}

	params := gocv.NewArucoDetectorParameters()
	return &ArucoDetector{
		detector: gocv.NewArucoDetectorWithParams(dict, params),
		config:   cfg,
	}, nil
}

// Detect decodes the frame, finds markers and solves one pose per marker.
func (d *ArucoDetector) Detect(frame []byte) ([]Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(frame, gocv.IMReadGrayScale)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	work := img
	if d.config.Resolution < 1 {
		small := gocv.NewMat()
		defer small.Close()
		gocv.Resize(img, &small, image.Point{}, d.config.Resolution, d.config.Resolution, gocv.InterpolationArea)
		work = small
	}

	corners, ids, _ := d.detector.DetectMarkers(work)
	if len(corners) == 0 {
		return nil, nil
	}

	intr := AssumedIntrinsics(work.Cols(), work.Rows())
	k := intr.Matrix()
	camera := matFromRows(3, 3, k[:])
	defer camera.Close()
	dist := gocv.NewMatWithSize(4, 1, gocv.MatTypeCV64F)
	defer dist.Close()
	for i := 0; i < 4; i++ {
		dist.SetDoubleAt(i, 0, 0)
	}

	obj := ObjectPoints(d.config.MarkerLength)
	objPts := make([]gocv.Point3f, 4)
	for i, p := range obj {
		objPts[i] = gocv.Point3f{X: float32(p[0]), Y: float32(p[1]), Z: float32(p[2])}
	}
	objVec := gocv.NewPoint3fVectorFromPoints(objPts)
	defer objVec.Close()

	observations := make([]Observation, 0, len(corners))
	for i, c := range corners {
		if len(c) != 4 {
			continue
		}
		imgVec := gocv.NewPoint2fVectorFromPoints(c)
		rvec := gocv.NewMat()
		tvec := gocv.NewMat()
		ok := gocv.SolvePnP(objVec, imgVec, camera, dist, &rvec, &tvec, false, solvePnPIPPESquare)
		if ok {
			obs := Observation{ID: ids[i]}
			for k := 0; k < 4; k++ {
				obs.Corners[k] = [2]float64{float64(c[k].X), float64(c[k].Y)}
			}
			for k := 0; k < 3; k++ {
				obs.Rvec[k] = rvec.GetDoubleAt(k, 0)
				obs.Tvec[k] = tvec.GetDoubleAt(k, 0)
			}
			observations = append(observations, obs)
		}
		imgVec.Close()
		rvec.Close()
		tvec.Close()
	}

	return observations, nil
}

// Close releases the detector resources
func (d *ArucoDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

func matFromRows(rows, cols int, values []float64) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV64F)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.SetDoubleAt(r, c, values[r*cols+c])
		}
	}
	return m
}
