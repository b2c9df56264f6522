package cococonv

// Sliding-window cropping of COCO datasets.

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// DefaultMinVisible is the default fraction of an object's area that must lie inside a tile for
// the object to be annotated in that tile.
const DefaultMinVisible = 0.75

// TileOptions configures Tile.
type TileOptions struct {
	ImageDir    string // The directory with the images referenced by the document.
	OutImageDir string // The directory the tiles are written to.

	CropWidth  int
	CropHeight int
	OverlapW   float64 // Overlap between horizontally adjacent tiles, as a fraction in [0, 1).
	OverlapH   float64 // Overlap between vertically adjacent tiles, as a fraction in [0, 1).

	MinVisible  float64 // In (0, 1]; zero selects DefaultMinVisible.
	KeepEmpty   bool    // Keep tiles without annotations.
	JPEGQuality int     // Zero selects 95.
}

func (o *TileOptions) validate() error {
	if o.CropWidth <= 0 || o.CropHeight <= 0 {
		return fmt.Errorf("invalid crop size %dx%d", o.CropWidth, o.CropHeight)
	}
	if o.OverlapW < 0 || o.OverlapW >= 1 || o.OverlapH < 0 || o.OverlapH >= 1 {
		return fmt.Errorf("invalid overlap %gx%g, must be in [0.0, 1.0)", o.OverlapW, o.OverlapH)
	}
	if o.MinVisible == 0 {
		o.MinVisible = DefaultMinVisible
	}
	if o.MinVisible < 0 || o.MinVisible > 1 {
		return fmt.Errorf("invalid minimum visible fraction %g, must be in (0.0, 1.0]", o.MinVisible)
	}
	if o.JPEGQuality == 0 {
		o.JPEGQuality = 95
	}
	if o.JPEGQuality < 1 || o.JPEGQuality > 100 {
		return fmt.Errorf("invalid JPEG quality %d", o.JPEGQuality)
	}
	if o.OutImageDir == "" {
		return errors.New("missing tile output directory")
	}
	if filepath.Clean(o.ImageDir) == filepath.Clean(o.OutImageDir) {
		return errors.New("the image input and output paths cannot be identical")
	}
	return nil
}

// TileSummary counts the outcome of Tile.
type TileSummary struct {
	Images        int // Source images tiled.
	MissingImages int // Source images that could not be found.
	Tiles         int // Tiles written.
	Annotations   int // Annotations in the tiled document.
	Dropped       int // Clipped annotations below the visibility threshold.
}

// tileOrigins returns the offsets of crops of length crop along an axis of length size. Adjacent
// crops overlap by the given fraction and the last crop ends at the axis end.
func tileOrigins(size, crop int, overlap float64) []int {
	if size <= crop {
		return []int{0}
	}
	stride := int(math.Floor(float64(crop) * (1 - overlap)))
	if stride < 1 {
		stride = 1
	}

	var origins []int
	for x := 0; ; x += stride {
		if x+crop >= size {
			origins = append(origins, size-crop)
			break
		}
		origins = append(origins, x)
	}
	return origins
}

// clipAnnotation clips a to tile and translates it into tile coordinates. It reports false if
// less than minVisible of the annotation's area lies within tile.
func clipAnnotation(a COCOAnnotation, tile image.Rectangle, minVisible float64) (
	COCOAnnotation, bool) {

	box := bboxRect(a)
	visible := box.Intersect(tile)
	if visible.Empty() {
		return COCOAnnotation{}, false
	}

	boxArea := box.Dx() * box.Dy()
	visibleArea := visible.Dx() * visible.Dy()
	if float64(visibleArea) < minVisible*float64(boxArea) {
		return COCOAnnotation{}, false
	}

	visible = visible.Sub(tile.Min)
	return COCOAnnotation{
		CategoryID: a.CategoryID,
		Bbox:       [4]int{visible.Min.X, visible.Min.Y, visible.Dx(), visible.Dy()},
		Area:       visibleArea,
		IsCrowd:    a.IsCrowd,
		Ignore:     a.Ignore,
	}, true
}

// Tile cuts every image of doc into overlapping tiles, writes them to opts.OutImageDir, and
// returns a COCO document describing the tiles. Tile files are named after their source image
// with the tile offset appended, e.g. "img_320_0.jpg".
func Tile(doc Document, opts TileOptions) (Document, TileSummary, error) {
	var summary TileSummary
	if err := opts.validate(); err != nil {
		return Document{}, summary, err
	}
	if err := os.MkdirAll(opts.OutImageDir, 0755); err != nil {
		return Document{}, summary, fmt.Errorf("cannot create directory %q: %w", opts.OutImageDir, err)
	}

	byImage := doc.AnnotationsByImage()
	var accepted []acceptedImage

	for _, src := range doc.Images {
		path := filepath.Join(opts.ImageDir, src.FileName)
		img, err := loadImage(path)
		if errors.Is(err, os.ErrNotExist) {
			log.WithField("file", src.FileName).Warn("Image does not exist in the image directory, skipping")
			summary.MissingImages++
			continue
		} else if err != nil {
			return Document{}, summary, fmt.Errorf("failed to load %q: %w", path, err)
		}
		summary.Images++

		bounds := img.Bounds()
		ext := filepath.Ext(src.FileName)
		base := src.FileName[:len(src.FileName)-len(ext)]

		for _, y := range tileOrigins(bounds.Dy(), opts.CropHeight, opts.OverlapH) {
			for _, x := range tileOrigins(bounds.Dx(), opts.CropWidth, opts.OverlapW) {
				tile := image.Rect(x, y, x+opts.CropWidth, y+opts.CropHeight).
					Intersect(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

				var annotations []COCOAnnotation
				for _, a := range byImage[src.ID] {
					if clipped, ok := clipAnnotation(a, tile, opts.MinVisible); ok {
						annotations = append(annotations, clipped)
					} else if !tile.Intersect(bboxRect(a)).Empty() {
						summary.Dropped++
					}
				}
				if len(annotations) == 0 && !opts.KeepEmpty {
					continue
				}

				name := fmt.Sprintf("%s_%d_%d%s", base, x, y, ext)
				crop := imaging.Crop(img, tile.Add(bounds.Min))
				if err := saveImage(filepath.Join(opts.OutImageDir, name), crop,
					opts.JPEGQuality); err != nil {
					return Document{}, summary, fmt.Errorf("failed to save tile %q: %w", name, err)
				}
				summary.Tiles++

				accepted = append(accepted, acceptedImage{
					image: COCOImage{
						FileName: name,
						Width:    tile.Dx(),
						Height:   tile.Dy(),
					},
					annotations: annotations,
				})
			}
		}
	}

	tiled := assignIDs(accepted, doc.Categories)
	summary.Annotations = len(tiled.Annotations)

	log.WithFields(logrus.Fields{
		"images":      summary.Images,
		"tiles":       summary.Tiles,
		"annotations": summary.Annotations,
		"dropped":     summary.Dropped,
	}).Info("Tiled dataset")
	return tiled, summary, nil
}

func bboxRect(a COCOAnnotation) image.Rectangle {
	return image.Rect(a.Bbox[0], a.Bbox[1], a.Bbox[0]+a.Bbox[2], a.Bbox[1]+a.Bbox[3])
}

// TileCOCOFile reads the COCO document at inPath, tiles it, and writes the tiled document to
// outPath.
func TileCOCOFile(inPath, outPath string, opts TileOptions) (TileSummary, error) {
	doc, err := ReadCOCO(inPath)
	if err != nil {
		return TileSummary{}, err
	}

	tiled, summary, err := Tile(doc, opts)
	if err != nil {
		return summary, err
	}
	if err := WriteCOCO(outPath, tiled); err != nil {
		return summary, err
	}
	return summary, nil
}
