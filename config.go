package cococonv

// Category lists and batch configuration.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseCategories parses a comma-separated list of id:name[:supercategory] entries. The
// supercategory defaults to "none".
func ParseCategories(s string) (Categories, error) {
	var categories Categories
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		parts := strings.Split(v, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[1] == "" {
			return nil, fmt.Errorf("invalid category %q, expected id:name[:supercategory]", v)
		}
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid category id in %q: %v", v, err)
		}
		c := Category{Supercategory: "none", ID: id, Name: parts[1]}
		if len(parts) == 3 {
			c.Supercategory = parts[2]
		}
		categories = append(categories, c)
	}
	if len(categories) == 0 {
		return nil, errors.New("no categories given")
	}
	return categories, nil
}

// LoadCategories reads a JSON array of {supercategory, id, name} objects from path.
func LoadCategories(path string) (Categories, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var categories Categories
	if err := json.Unmarshal(enc, &categories); err != nil {
		return nil, fmt.Errorf("failed to parse categories from %q: %w", path, err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories in %q", path)
	}
	return categories, nil
}

// DatasetConfig describes one dataset variant, e.g. a train or test split.
type DatasetConfig struct {
	Name        string `yaml:"name"`
	Annotations string `yaml:"annotations"` // The VOC annotation directory.
	Images      string `yaml:"images"`      // The image directory.
	Prefix      string `yaml:"prefix"`
	Extension   string `yaml:"extension"`
	Output      string `yaml:"output"` // The COCO output file.

	// Prune deletes images the converted document does not reference.
	Prune      bool   `yaml:"prune"`
	StripField string `yaml:"strip_field"`
}

// BatchConfig lists dataset variants converted with a shared category list.
type BatchConfig struct {
	Categories  Categories      `yaml:"categories"`
	OnBadObject string          `yaml:"on_bad_object"`
	Datasets    []DatasetConfig `yaml:"datasets"`
}

// LoadBatchConfig reads a YAML batch configuration. Relative paths in it are resolved against
// the directory containing the configuration file.
func LoadBatchConfig(path string) (BatchConfig, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return BatchConfig{}, err
	}

	var cfg BatchConfig
	if err := yaml.Unmarshal(enc, &cfg); err != nil {
		return BatchConfig{}, fmt.Errorf("failed to parse batch configuration %q: %w", path, err)
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i := range cfg.Datasets {
		d := &cfg.Datasets[i]
		d.Annotations = resolve(d.Annotations)
		d.Images = resolve(d.Images)
		d.Output = resolve(d.Output)
	}

	return cfg, cfg.validate()
}

func (cfg BatchConfig) validate() error {
	if len(cfg.Categories) == 0 {
		return errors.New("batch configuration has no categories")
	}
	if _, err := ParseObjectPolicy(cfg.OnBadObject); err != nil {
		return err
	}
	if len(cfg.Datasets) == 0 {
		return errors.New("batch configuration has no datasets")
	}
	for i, d := range cfg.Datasets {
		if d.Annotations == "" || d.Images == "" || d.Output == "" {
			return fmt.Errorf("dataset %d (%s): annotations, images and output are required", i, d.Name)
		}
	}
	return nil
}

// RunBatch converts each dataset of cfg in order, independently of the others, and prunes it
// when requested. It stops at the first fatal error.
func RunBatch(cfg BatchConfig) ([]Summary, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	policy, _ := ParseObjectPolicy(cfg.OnBadObject)

	summaries := make([]Summary, 0, len(cfg.Datasets))
	for _, d := range cfg.Datasets {
		log.WithField("dataset", d.Name).Info("Converting dataset")

		summary, err := ConvertVOCToCOCOFile(ConvertOptions{
			AnnotationDir:     d.Annotations,
			ImageDir:          d.Images,
			FilenamePrefix:    d.Prefix,
			FilenameExtension: d.Extension,
			Categories:        cfg.Categories,
			OnBadObject:       policy,
		}, d.Output)
		if err != nil {
			return summaries, fmt.Errorf("dataset %s: %w", d.Name, err)
		}
		summaries = append(summaries, summary)

		if !d.Prune {
			continue
		}
		exts := DefaultImageExtensions
		if d.Extension != "" {
			exts = []string{d.Extension}
		}
		_, err = Prune(PruneOptions{
			ImageDir:        d.Images,
			COCOPath:        d.Output,
			ImageExtensions: exts,
			StripField:      d.StripField,
		})
		if err != nil {
			return summaries, fmt.Errorf("dataset %s: %w", d.Name, err)
		}
	}

	return summaries, nil
}
