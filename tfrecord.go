package cococonv

// TFRecord object detection export of COCO documents.

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// tfLabelMap assigns the TensorFlow label id of each COCO category. TensorFlow reserves id 0 for
// the background class, so categories are numbered by their 1-based position in the list.
type tfLabelMap map[int]struct {
	id   int64
	name string
}

func newTFLabelMap(categories Categories) tfLabelMap {
	m := make(tfLabelMap, len(categories))
	for i, c := range categories {
		if _, ok := m[c.ID]; ok {
			continue
		}
		m[c.ID] = struct {
			id   int64
			name string
		}{int64(i + 1), c.Name}
	}
	return m
}

// toTFRecord converts a COCO image and its annotations to a TFRecord feature map. The image is
// read from imageDir.
func toTFRecord(img COCOImage, annotations []COCOAnnotation, imageDir string, labels tfLabelMap) (
	TFFeatureMap, error) {

	path := filepath.Join(imageDir, img.FileName)

	// Get the image width and height.
	config, format, err := decodeImageConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %w", err)
	}

	// Read the image data.
	imgData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %w", err)
	}

	// Prepare the feature map for the per file data.
	f := make(TFFeatureMap, 16)
	f["image/height"] = config.Height
	f["image/width"] = config.Width
	f["image/filename"] = img.FileName
	f["image/source_id"] = fmt.Sprint(img.ID)
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per label data.
	xmins := make([]float32, 0, len(annotations))
	ymins := make([]float32, 0, len(annotations))
	xmaxs := make([]float32, 0, len(annotations))
	ymaxs := make([]float32, 0, len(annotations))
	classes := make([]string, 0, len(annotations))
	classIDs := make([]int64, 0, len(annotations))
	for _, a := range annotations {
		label, ok := labels[a.CategoryID]
		if !ok {
			log.WithField("file", img.FileName).
				Warnf("Skipping an annotation, unknown category id %d", a.CategoryID)
			continue
		}
		x, y, w, h := a.Bbox[0], a.Bbox[1], a.Bbox[2], a.Bbox[3]
		xmins = append(xmins, float32(x)/float32(config.Width))
		ymins = append(ymins, float32(y)/float32(config.Height))
		xmaxs = append(xmaxs, float32(x+w)/float32(config.Width))
		ymaxs = append(ymaxs, float32(y+h)/float32(config.Height))
		classes = append(classes, label.name)
		classIDs = append(classIDs, label.id)
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the COCO document
// to one or more TFRecord files stored under recordFilePath (with suffixes added when
// numShards>1). Images are read from imageDir.
//
// A label map for the document's categories is written to labelMapPath.
func WriteTFRecord(recordFilePath, labelMapPath string, doc Document, imageDir string,
	numShards int) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	labels := newTFLabelMap(doc.Categories)
	byImage := doc.AnnotationsByImage()

	var shardFile *os.File
	var shardWriter *bufio.Writer
	closeShard := func() error {
		if shardFile == nil {
			return nil
		}
		var err error
		if e := shardWriter.Flush(); e != nil {
			err = e
		}
		closeWithErrCheck(shardFile, &err)
		shardFile, shardWriter = nil, nil
		return err
	}
	defer func() {
		if e := closeShard(); e != nil && err == nil {
			err = e
		}
	}()

	openShard := func(idx int) error {
		if err := closeShard(); err != nil {
			return err
		}
		shardPath := recordFilePath
		if numShards > 1 {
			shardPath += fmtShardSuffix(idx)
		}
		f, err := os.Create(shardPath)
		if err != nil {
			return fmt.Errorf("failed to create shard at %q: %w", shardPath, err)
		}
		shardFile, shardWriter = f, bufio.NewWriter(f)
		return nil
	}

	shardSize := int(math.Ceil(float64(len(doc.Images)) / float64(numShards)))
	if shardSize == 0 {
		shardSize = 1
	}
	shardIdx := -1

	// Convert and serialise one image at a time.
	written := 0
	for i, img := range doc.Images {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++
			if err := openShard(shardIdx); err != nil {
				return err
			}
		}

		features, err := toTFRecord(img, byImage[img.ID], imageDir, labels)
		if err != nil {
			log.WithField("file", img.FileName).Warnf("Failed to convert: %v", err)
			continue
		}
		tfExample := example.New(features)

		if err := writeTFRecordExample(shardWriter, tfExample); err != nil {
			return fmt.Errorf("failed to write example for %q: %w", img.FileName, err)
		}
		written++
	}

	// Every shard file exists, even if there were too few images to fill it.
	for shardIdx < numShards-1 {
		shardIdx++
		if err := openShard(shardIdx); err != nil {
			return err
		}
	}

	if written == 0 {
		log.Warnf("No examples written to %s", recordFilePath)
	} else {
		log.WithField("examples", written).Infof("Wrote TFRecord to %s", recordFilePath)
	}

	return saveTFRecordLabelMap(labelMapPath, doc.Categories, labels)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap writes the label map in prototxt format to path.
func saveTFRecordLabelMap(path string, categories Categories, labels tfLabelMap) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %w", path, err)
	}
	defer closeWithErrCheck(file, &err)

	var b strings.Builder
	seen := make(map[int]bool, len(categories))
	for _, c := range categories {
		// The first category with a given id owns the label.
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		fmt.Fprintf(&b, "item {\n  name: %s\n  id: %d\n}\n", textFormatQuote(c.Name),
			labels[c.ID].id)
	}
	if _, err := io.WriteString(file, b.String()); err != nil {
		return fmt.Errorf("failed to write the label map %q: %w", path, err)
	}

	return nil
}

// textFormatQuote quotes s as a protobuf text format string. Bytes outside printable ASCII are
// written as octal escapes, the same way proto.MarshalText writes string fields.
func textFormatQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			if c >= 0x20 && c < 0x7f {
				b.WriteByte(c)
			} else {
				fmt.Fprintf(&b, "\\%03o", c)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
