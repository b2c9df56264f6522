package cococonv

// COCO specific functionality.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
)

// Category is a single entry of the COCO categories list.
type Category struct {
	Supercategory string `json:"supercategory" yaml:"supercategory"`
	ID            int    `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
}

// Categories is a COCO category list.
type Categories []Category

// IDByName returns the id of the first category whose name is exactly name.
func (c Categories) IDByName(name string) (int, bool) {
	for _, v := range c {
		if v.Name == name {
			return v.ID, true
		}
	}
	return 0, false
}

// COCOImage is a single entry of the COCO images list.
type COCOImage struct {
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	ID       int    `json:"id"`
}

// COCOAnnotation is a single object annotation in a COCO document.
type COCOAnnotation struct {
	ID         int    `json:"id"`
	ImageID    int    `json:"image_id"`
	CategoryID int    `json:"category_id"`
	Bbox       [4]int `json:"bbox"` // x, y, width, height
	Area       int    `json:"area"`
	IsCrowd    int    `json:"iscrowd"`
	Ignore     int    `json:"ignore"`
}

// Document is a complete COCO annotation document.
type Document struct {
	Images      []COCOImage      `json:"images"`
	Annotations []COCOAnnotation `json:"annotations"`
	Categories  Categories       `json:"categories"`
}

// newDocument returns a Document whose lists encode as [] rather than null when empty.
func newDocument(categories Categories) Document {
	if categories == nil {
		categories = Categories{}
	}
	return Document{
		Images:      []COCOImage{},
		Annotations: []COCOAnnotation{},
		Categories:  categories,
	}
}

// AnnotationsByImage groups the annotations of doc by image id, keeping their order.
func (doc Document) AnnotationsByImage() map[int][]COCOAnnotation {
	m := make(map[int][]COCOAnnotation, len(doc.Images))
	for _, a := range doc.Annotations {
		m[a.ImageID] = append(m[a.ImageID], a)
	}
	return m
}

// ReadCOCO reads and parses the COCO document at path.
func ReadCOCO(path string) (Document, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}

	doc := newDocument(nil)
	if err := json.Unmarshal(enc, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse COCO input from %q: %w", path, err)
	}
	return doc, nil
}

// WriteCOCO writes doc to path, replacing any existing file.
func WriteCOCO(path string, doc Document) error {
	if doc.Images == nil {
		doc.Images = []COCOImage{}
	}
	if doc.Annotations == nil {
		doc.Annotations = []COCOAnnotation{}
	}
	if doc.Categories == nil {
		doc.Categories = Categories{}
	}
	return writeJSON(path, doc)
}

// marshalJSON encodes v with four space indentation and without HTML escaping.
func marshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeJSON atomically writes the JSON encoding of v to path, replacing any existing file.
func writeJSON(path string, v interface{}) error {
	enc, err := marshalJSON(v)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %w", path, err)
	}
	return nil
}
