package cococonv

// PASCAL VOC specific functionality.

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

var (
	// ErrEmptyAnnotation is returned for annotation files whose root element has no children.
	ErrEmptyAnnotation = errors.New("annotation root has no child elements")
	// ErrMalformedObject is returned for object nodes with missing or invalid bounding boxes.
	ErrMalformedObject = errors.New("malformed object node")
)

// VOCObject is a single labeled object within a VOC annotation file.
type VOCObject struct {
	Name   string
	Coords [4]int // xmin, ymin, xmax, ymax
}

// Width is the object width from o.Coords.
func (o VOCObject) Width() int {
	return o.Coords[2] - o.Coords[0]
}

// Height is the object height from o.Coords.
func (o VOCObject) Height() int {
	return o.Coords[3] - o.Coords[1]
}

// VOCAnnotatedFile defines the VOC annotation structure for a single image.
type VOCAnnotatedFile struct {
	FileName string
	Width    int
	Height   int
	Objects  []VOCObject

	// BadObjects holds one error per object node that could not be parsed. Such objects are
	// not part of Objects.
	BadObjects []error

	// sizeErr is set when <size> is missing or invalid. Width and Height are zero then.
	sizeErr error
}

// The raw XML layout. Optional elements are pointers so that their absence can be detected.
type vocXMLAnnotation struct {
	XMLName  xml.Name
	Filename *string        `xml:"filename"`
	Size     *vocXMLSize    `xml:"size"`
	Objects  []vocXMLObject `xml:"object"`
	Other    []struct {
		XMLName xml.Name
	} `xml:",any"`
}

type vocXMLSize struct {
	Width  *string `xml:"width"`
	Height *string `xml:"height"`
}

type vocXMLObject struct {
	Name   *string `xml:"name"`
	BndBox *struct {
		XMin *string `xml:"xmin"`
		YMin *string `xml:"ymin"`
		XMax *string `xml:"xmax"`
		YMax *string `xml:"ymax"`
	} `xml:"bndbox"`
}

func (a *vocXMLAnnotation) numChildren() int {
	n := len(a.Objects) + len(a.Other)
	if a.Filename != nil {
		n++
	}
	if a.Size != nil {
		n++
	}
	return n
}

// parseVOCFile reads and parses the VOC annotation file at path. Non-UTF-8 encodings declared in
// the XML header are decoded.
//
// A root element without children yields ErrEmptyAnnotation. Object nodes with a missing name or
// invalid bounds do not fail the file; they are collected in BadObjects instead and wrap
// ErrMalformedObject. A missing or invalid <size> is only reported by checkSize, so that callers
// can skip the file for other reasons first.
func parseVOCFile(path string) (VOCAnnotatedFile, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return VOCAnnotatedFile{}, err
	}

	var raw vocXMLAnnotation
	d := xml.NewDecoder(bytes.NewReader(enc))
	d.CharsetReader = charset.NewReaderLabel
	if err := d.Decode(&raw); err != nil {
		return VOCAnnotatedFile{}, fmt.Errorf("failed to parse VOC input from %q: %w", path, err)
	}
	if raw.numChildren() == 0 {
		return VOCAnnotatedFile{}, fmt.Errorf("%q: %w", path, ErrEmptyAnnotation)
	}

	if raw.Filename == nil {
		return VOCAnnotatedFile{}, fmt.Errorf("%q: missing <filename>", path)
	}
	fileData := VOCAnnotatedFile{
		FileName: strings.TrimSpace(*raw.Filename),
		Objects:  make([]VOCObject, 0, len(raw.Objects)),
	}

	if raw.Size == nil {
		fileData.sizeErr = fmt.Errorf("%q: missing <size>", path)
	} else if w, h, err := raw.Size.dimensions(); err != nil {
		fileData.sizeErr = fmt.Errorf("%q: invalid <size>: %v", path, err)
	} else {
		fileData.Width, fileData.Height = w, h
	}

	for i, o := range raw.Objects {
		obj, err := o.toObject()
		if err != nil {
			fileData.BadObjects = append(fileData.BadObjects,
				fmt.Errorf("%q: object %d: %w: %v", path, i, ErrMalformedObject, err))
			continue
		}
		fileData.Objects = append(fileData.Objects, obj)
	}

	return fileData, nil
}

// checkSize returns the error for a missing or invalid <size>, if any.
func (f VOCAnnotatedFile) checkSize() error {
	return f.sizeErr
}

func (s vocXMLSize) dimensions() (int, int, error) {
	w, err := parseVOCInt(s.Width, "width")
	if err != nil {
		return 0, 0, err
	}
	h, err := parseVOCInt(s.Height, "height")
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

func (o vocXMLObject) toObject() (VOCObject, error) {
	if o.Name == nil {
		return VOCObject{}, errors.New("missing <name>")
	}
	if o.BndBox == nil {
		return VOCObject{}, errors.New("missing <bndbox>")
	}

	obj := VOCObject{Name: strings.TrimSpace(*o.Name)}
	fields := []struct {
		v    *string
		name string
	}{
		{o.BndBox.XMin, "xmin"},
		{o.BndBox.YMin, "ymin"},
		{o.BndBox.XMax, "xmax"},
		{o.BndBox.YMax, "ymax"},
	}
	for i, f := range fields {
		v, err := parseVOCInt(f.v, f.name)
		if err != nil {
			return VOCObject{}, err
		}
		if v < 0 {
			return VOCObject{}, fmt.Errorf("negative <%s>: %d", f.name, v)
		}
		obj.Coords[i] = v
	}

	if obj.Width() < 0 || obj.Height() < 0 {
		return VOCObject{}, fmt.Errorf("inverted bounding box %v", obj.Coords)
	}
	return obj, nil
}

func parseVOCInt(s *string, name string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("missing <%s>", name)
	}
	v, err := strconv.Atoi(strings.TrimSpace(*s))
	if err != nil {
		return 0, fmt.Errorf("invalid <%s>: %v", name, err)
	}
	return v, nil
}
