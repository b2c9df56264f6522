package cococonv

// Estimation of the tile overlap for sliding-window cropping.

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
)

// ErrNoObjects is returned when no object sizes are available to estimate an overlap from.
var ErrNoObjects = errors.New("no objects found")

// OverlapEstimate is the overlap between adjacent crops that keeps objects whole in at least one
// of two neighbouring crops. Overlaps are fractions of the crop size with two decimals.
type OverlapEstimate struct {
	CropWidth  int `json:"crop_width"`
	CropHeight int `json:"crop_height"`

	Objects   int     `json:"objects"`
	MaxWidth  int     `json:"max_width"`
	MaxHeight int     `json:"max_height"`
	AvgWidth  float64 `json:"avg_width"`
	AvgHeight float64 `json:"avg_height"`

	MaxOverlapW float64 `json:"max_overlap_w"` // Based on the largest object width.
	MaxOverlapH float64 `json:"max_overlap_h"`
	AvgOverlapW float64 `json:"avg_overlap_w"` // Based on the average object width.
	AvgOverlapH float64 `json:"avg_overlap_h"`
}

// objectSizeStats folds object extents into running maxima and sums.
type objectSizeStats struct {
	count      int
	maxW, maxH int
	sumW, sumH int
}

// add returns s with the extent of one more object folded in.
func (s objectSizeStats) add(w, h int) objectSizeStats {
	s.count++
	if w > s.maxW {
		s.maxW = w
	}
	if h > s.maxH {
		s.maxH = h
	}
	s.sumW += w
	s.sumH += h
	return s
}

// overlapFraction is the overlap, as a fraction of cropSize, needed when the crop boundary
// bisects an object of the given extent. The percentage is rounded up to a whole number.
func overlapFraction(extent float64, cropSize int) float64 {
	percent := extent * 100 / (2 * float64(cropSize))
	return math.Ceil(percent) / 100
}

// EstimateOverlap computes the crop overlap from the sizes of all objects in the VOC annotation
// files in labelDir. Object extents are pixel inclusive, i.e. max - min + 1.
//
// Empty annotation files are skipped. Malformed objects are skipped or fail the estimate,
// depending on onBadObject.
func EstimateOverlap(labelDir string, cropWidth, cropHeight int, onBadObject ObjectPolicy) (
	OverlapEstimate, error) {

	if cropWidth <= 0 || cropHeight <= 0 {
		return OverlapEstimate{}, fmt.Errorf("invalid crop size %dx%d", cropWidth, cropHeight)
	}

	labelFiles, err := fileNamesByExtInDir(labelDir, ".xml")
	if err != nil {
		return OverlapEstimate{}, err
	}

	var stats objectSizeStats
	for _, name := range labelFiles {
		fileData, err := parseVOCFile(filepath.Join(labelDir, name))
		if errors.Is(err, ErrEmptyAnnotation) {
			log.WithField("file", name).Debug("Annotation file invalid, skipping")
			continue
		} else if err != nil {
			return OverlapEstimate{}, err
		}

		if len(fileData.BadObjects) > 0 {
			if onBadObject == AbortOnBadObject {
				return OverlapEstimate{}, fileData.BadObjects[0]
			}
			for _, err := range fileData.BadObjects {
				log.WithError(err).Warn("Skipping a malformed object")
			}
		}

		for _, obj := range fileData.Objects {
			stats = stats.add(obj.Width()+1, obj.Height()+1)
		}
	}

	return estimateFromStats(stats, cropWidth, cropHeight)
}

func estimateFromStats(stats objectSizeStats, cropWidth, cropHeight int) (OverlapEstimate, error) {
	if stats.count == 0 {
		return OverlapEstimate{}, ErrNoObjects
	}

	e := OverlapEstimate{
		CropWidth:  cropWidth,
		CropHeight: cropHeight,
		Objects:    stats.count,
		MaxWidth:   stats.maxW,
		MaxHeight:  stats.maxH,
		AvgWidth:   float64(stats.sumW) / float64(stats.count),
		AvgHeight:  float64(stats.sumH) / float64(stats.count),
	}
	e.MaxOverlapW = overlapFraction(float64(e.MaxWidth), cropWidth)
	e.MaxOverlapH = overlapFraction(float64(e.MaxHeight), cropHeight)
	e.AvgOverlapW = overlapFraction(e.AvgWidth, cropWidth)
	e.AvgOverlapH = overlapFraction(e.AvgHeight, cropHeight)

	return e, nil
}
