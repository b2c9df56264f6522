package cococonv

// VOC to COCO conversion.

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// ErrUnknownCategory is logged for objects whose name is not in the category list.
var ErrUnknownCategory = errors.New("unknown category")

// ObjectPolicy decides what happens to object nodes with missing or invalid bounding boxes.
type ObjectPolicy int

// The known object policies.
const (
	AbortOnBadObject ObjectPolicy = iota // Fail the whole conversion.
	SkipBadObject                        // Drop the object and keep the image.
)

// ParseObjectPolicy parses "abort" or "skip".
func ParseObjectPolicy(s string) (ObjectPolicy, error) {
	switch s {
	case "", "abort":
		return AbortOnBadObject, nil
	case "skip":
		return SkipBadObject, nil
	}
	return AbortOnBadObject, fmt.Errorf("unknown object policy %q", s)
}

func (p ObjectPolicy) String() string {
	if p == SkipBadObject {
		return "skip"
	}
	return "abort"
}

// ConvertOptions configures a VOC to COCO conversion.
type ConvertOptions struct {
	AnnotationDir     string     // Directory with one VOC .xml file per image.
	ImageDir          string     // Directory with the image files.
	FilenamePrefix    string     // Prepended to the <filename> value.
	FilenameExtension string     // Appended to the <filename> value; also selects image files.
	Categories        Categories // Copied verbatim into the output.
	OnBadObject       ObjectPolicy
}

// Summary counts the outcome of a conversion. Every enumerated annotation file is counted in
// exactly one of BadXML, MissingImage and Success.
type Summary struct {
	BadXML          int `json:"bad_xml_count"`
	MissingImage    int `json:"missing_image_count"`
	Success         int `json:"success_count"`
	BadObject       int `json:"bad_object_count"`
	UnknownCategory int `json:"unknown_category_count"`
	Annotations     int `json:"annotation_count"`
}

// Total is the number of annotation files processed.
func (s Summary) Total() int {
	return s.BadXML + s.MissingImage + s.Success
}

// acceptedImage is an image and its annotations before ids are assigned.
type acceptedImage struct {
	image       COCOImage
	annotations []COCOAnnotation
}

// ConvertVOCToCOCO reads the VOC annotations in opts.AnnotationDir and builds a COCO document
// for the ones whose image exists in opts.ImageDir.
//
// Empty annotation files and missing images are skipped and counted. Objects with an unknown
// category are dropped without affecting their image. Malformed objects either abort the run or
// are dropped, depending on opts.OnBadObject. Any other error is fatal.
func ConvertVOCToCOCO(opts ConvertOptions) (Document, Summary, error) {
	var summary Summary

	labelFiles, err := fileNamesByExtInDir(opts.AnnotationDir, ".xml")
	if err != nil {
		return Document{}, summary, err
	}
	imageFiles, err := fileNamesByExtInDir(opts.ImageDir, opts.FilenameExtension)
	if err != nil {
		return Document{}, summary, err
	}
	log.WithField("files", len(labelFiles)).Info("Parsing VOC labels")

	images := make(map[string]bool, len(imageFiles))
	for _, name := range imageFiles {
		images[name] = true
	}

	accepted := make([]acceptedImage, 0, len(labelFiles))
	for _, name := range labelFiles {
		path := filepath.Join(opts.AnnotationDir, name)

		fileData, err := parseVOCFile(path)
		if errors.Is(err, ErrEmptyAnnotation) {
			log.WithField("file", name).Warn("Annotation file invalid, skipping")
			summary.BadXML++
			continue
		} else if err != nil {
			return Document{}, summary, err
		}

		fileName := opts.FilenamePrefix + fileData.FileName + opts.FilenameExtension
		if !images[fileName] {
			log.WithField("file", fileName).Warn("Image does not exist in the image directory, skipping")
			summary.MissingImage++
			continue
		}
		if err := fileData.checkSize(); err != nil {
			return Document{}, summary, err
		}

		if len(fileData.BadObjects) > 0 {
			if opts.OnBadObject == AbortOnBadObject {
				return Document{}, summary, fileData.BadObjects[0]
			}
			for _, err := range fileData.BadObjects {
				log.WithError(err).Warn("Skipping a malformed object")
			}
			summary.BadObject += len(fileData.BadObjects)
		}

		img := acceptedImage{
			image: COCOImage{
				FileName: fileName,
				Width:    fileData.Width,
				Height:   fileData.Height,
			},
			annotations: make([]COCOAnnotation, 0, len(fileData.Objects)),
		}
		for _, obj := range fileData.Objects {
			a, err := toCOCOAnnotation(obj, opts.Categories)
			if err != nil {
				log.WithField("file", name).Warnf("Skipping an annotation: %v", err)
				summary.UnknownCategory++
				continue
			}
			img.annotations = append(img.annotations, a)
		}

		accepted = append(accepted, img)
		summary.Success++
	}

	doc := assignIDs(accepted, opts.Categories)
	summary.Annotations = len(doc.Annotations)

	return doc, summary, nil
}

// toCOCOAnnotation converts obj to a COCO annotation without ids.
func toCOCOAnnotation(obj VOCObject, categories Categories) (COCOAnnotation, error) {
	categoryID, ok := categories.IDByName(obj.Name)
	if !ok {
		return COCOAnnotation{}, fmt.Errorf("%w %q", ErrUnknownCategory, obj.Name)
	}

	w, h := obj.Width(), obj.Height()
	return COCOAnnotation{
		CategoryID: categoryID,
		Bbox:       [4]int{obj.Coords[0], obj.Coords[1], w, h},
		Area:       w * h,
	}, nil
}

// assignIDs builds the document from the accepted images, numbering images and annotations
// densely from 1 in order.
func assignIDs(accepted []acceptedImage, categories Categories) Document {
	doc := newDocument(categories)
	doc.Images = make([]COCOImage, 0, len(accepted))

	annotationID := 0
	for i, img := range accepted {
		imageID := i + 1
		img.image.ID = imageID
		doc.Images = append(doc.Images, img.image)

		for _, a := range img.annotations {
			annotationID++
			a.ID = annotationID
			a.ImageID = imageID
			doc.Annotations = append(doc.Annotations, a)
		}
	}

	return doc
}

// ConvertVOCToCOCOFile runs ConvertVOCToCOCO and writes the resulting document to outPath.
func ConvertVOCToCOCOFile(opts ConvertOptions, outPath string) (Summary, error) {
	doc, summary, err := ConvertVOCToCOCO(opts)
	if err != nil {
		return summary, err
	}
	if err := WriteCOCO(outPath, doc); err != nil {
		return summary, err
	}

	log.WithFields(logrus.Fields{
		"bad_xml":       summary.BadXML,
		"missing_image": summary.MissingImage,
		"success":       summary.Success,
		"total":         summary.Total(),
		"annotations":   summary.Annotations,
	}).Infof("Wrote COCO labels to %s", outPath)
	return summary, nil
}
