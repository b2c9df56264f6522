package cococonv

// Removal of images and annotation fields that a COCO document does not use.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultImageExtensions are the image file suffixes considered by Prune when none are given.
var DefaultImageExtensions = []string{".jpg", ".JPG"}

// PruneOptions configures Prune.
type PruneOptions struct {
	ImageDir        string
	COCOPath        string
	ImageExtensions []string // Only files with one of these suffixes are candidates for deletion.
	StripField      string   // An annotation key to remove, e.g. "segmentation". Empty keeps all.
	DryRun          bool     // Report, but do not delete files or rewrite the document.
}

// PruneResult reports what Prune did.
type PruneResult struct {
	Deleted     []string // Image files removed from ImageDir.
	Kept        int      // Image files referenced by the document.
	Missing     []string // Referenced images without a file in ImageDir.
	Stripped    int      // Annotations from which StripField was removed.
	Annotations int
}

// Prune deletes the image files in opts.ImageDir that the COCO document at opts.COCOPath does
// not reference, optionally strips opts.StripField from every annotation, and rewrites the
// document. Fields of the document other than StripField are preserved.
func Prune(opts PruneOptions) (PruneResult, error) {
	var result PruneResult

	exts := opts.ImageExtensions
	if len(exts) == 0 {
		exts = DefaultImageExtensions
	}

	enc, err := os.ReadFile(opts.COCOPath)
	if err != nil {
		return result, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(enc, &doc); err != nil {
		return result, fmt.Errorf("failed to parse COCO input from %q: %w", opts.COCOPath, err)
	}

	var images []struct {
		FileName string `json:"file_name"`
	}
	if raw, ok := doc["images"]; ok {
		if err := json.Unmarshal(raw, &images); err != nil {
			return result, fmt.Errorf("invalid images list in %q: %w", opts.COCOPath, err)
		}
	}
	unmatched := make(map[string]bool, len(images))
	for _, img := range images {
		unmatched[img.FileName] = true
	}
	referenced := make(map[string]bool, len(unmatched))
	for name := range unmatched {
		referenced[name] = true
	}

	files, err := fileNamesByExtInDir(opts.ImageDir, exts...)
	if err != nil {
		return result, err
	}
	for _, name := range files {
		if referenced[name] {
			delete(unmatched, name)
			result.Kept++
			continue
		}

		path := filepath.Join(opts.ImageDir, name)
		if !opts.DryRun {
			if err := os.Remove(path); err != nil {
				return result, fmt.Errorf("failed to delete %q: %w", path, err)
			}
		}
		log.WithField("file", name).Debug("Deleted unused image")
		result.Deleted = append(result.Deleted, name)
	}

	// Report references that have no backing file, in document order.
	for _, img := range images {
		if unmatched[img.FileName] {
			log.WithField("file", img.FileName).Warn("Referenced image does not exist in the image directory")
			result.Missing = append(result.Missing, img.FileName)
			delete(unmatched, img.FileName)
		}
	}

	if raw, ok := doc["annotations"]; ok {
		stripped, count, n, err := stripAnnotationField(raw, opts.StripField)
		if err != nil {
			return result, fmt.Errorf("invalid annotations list in %q: %w", opts.COCOPath, err)
		}
		doc["annotations"] = stripped
		result.Stripped = count
		result.Annotations = n
	}

	log.WithField("deleted", len(result.Deleted)).WithField("kept", result.Kept).
		WithField("missing", len(result.Missing)).Infof("Pruned %s", opts.ImageDir)
	if opts.DryRun {
		return result, nil
	}

	if err := writeJSON(opts.COCOPath, doc); err != nil {
		return result, err
	}
	return result, nil
}

// stripAnnotationField removes field from every object in the JSON array raw. It returns the
// new array, the number of objects that had the field and the total number of objects.
func stripAnnotationField(raw json.RawMessage, field string) (json.RawMessage, int, int, error) {
	var annotations []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &annotations); err != nil {
		return nil, 0, 0, err
	}
	if field == "" {
		return raw, 0, len(annotations), nil
	}

	count := 0
	for _, a := range annotations {
		if _, ok := a[field]; ok {
			delete(a, field)
			count++
		}
	}
	if count == 0 {
		return raw, 0, len(annotations), nil
	}

	enc, err := json.Marshal(annotations)
	if err != nil {
		return nil, 0, 0, err
	}
	return enc, count, len(annotations), nil
}
