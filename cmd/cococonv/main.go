// Converts PASCAL VOC annotations to COCO and maintains COCO datasets: pruning unused images,
// estimating and applying sliding-window crops, and exporting TFRecords.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sensorable/cococonv"
)

var log = logrus.New()

// command is a subcommand of the CLI.
type command struct {
	usage string
	run   func(fs *flag.FlagSet, args []string) error
}

var commands = map[string]command{
	"convert":  {"Convert a directory of VOC XML files to a COCO JSON file", runConvert},
	"prune":    {"Delete images a COCO JSON file does not reference and strip annotation fields", runPrune},
	"overlap":  {"Estimate the crop overlap from VOC object sizes", runOverlap},
	"tile":     {"Cut the images of a COCO dataset into overlapping tiles", runTile},
	"tfrecord": {"Export a COCO dataset as TFRecord files", runTFRecord},
	"batch":    {"Convert all dataset variants listed in a YAML file", runBatch},
}

// usageError is returned by commands for invalid arguments.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...interface{}) error {
	return usageError{fmt.Sprintf(format, args...)}
}

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s: [options] <command> [command options]\n",
			filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "Commands:")
		names := make([]string, 0, len(commands))
		for name := range commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(os.Stderr, "  %s\t%s\n", name, commands[name].usage)
		}
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
}

func main() {
	logLevel := flag.String("log-level", "info", "The log `level` {debug, info, warn, error}")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		log.Print("Invalid log level: ", *logLevel)
		flag.Usage()
		os.Exit(1)
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	cococonv.SetLogger(log)

	if flag.NArg() == 0 {
		log.Print("Missing command")
		flag.Usage()
		os.Exit(1)
	}
	name := flag.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		log.Print("Unknown command: ", name)
		flag.Usage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	err = cmd.run(fs, flag.Args()[1:])
	var usageErr usageError
	if errors.As(err, &usageErr) {
		log.Print(usageErr.msg)
		fs.Usage()
		os.Exit(1)
	} else if err != nil {
		log.Fatalf("%s failed: %v", name, err)
	}
}

// categoriesFromFlags returns the categories given inline or in a file; exactly one of the two
// must be set.
func categoriesFromFlags(inline, path string) (cococonv.Categories, error) {
	switch {
	case inline != "" && path != "":
		return nil, usageErrorf("Only one of -categories and -categories-file may be given")
	case inline != "":
		categories, err := cococonv.ParseCategories(inline)
		if err != nil {
			return nil, usageErrorf("Invalid -categories: %v", err)
		}
		return categories, nil
	case path != "":
		return cococonv.LoadCategories(path)
	}
	return nil, usageErrorf("Missing -categories or -categories-file")
}

func runConvert(fs *flag.FlagSet, args []string) error {
	labelDir := fs.String("labels", "", "The `path` to the VOC annotation directory")
	imageDir := fs.String("images", "", "The `path` to the image directory")
	prefix := fs.String("prefix", "", "The `prefix` prepended to the <filename> of each annotation")
	ext := fs.String("ext", "", "The image file `extension` appended to the <filename> of each"+
		" annotation, e.g. .JPG")
	outPath := fs.String("out", "coco.json", "The COCO output file `path`")
	inline := fs.String("categories", "", "Comma-separated `id:name[:supercategory],...` list")
	categoriesFile := fs.String("categories-file", "",
		"The `path` to a JSON array of {supercategory, id, name} categories")
	onBadObject := fs.String("on-bad-object", "abort",
		"What to do with objects with missing or invalid bounding boxes {abort, skip}")
	_ = fs.Parse(args)

	if *labelDir == "" || *imageDir == "" {
		return usageErrorf("Missing label or image input path argument")
	}
	policy, err := cococonv.ParseObjectPolicy(*onBadObject)
	if err != nil {
		return usageErrorf("Invalid -on-bad-object: %v", err)
	}
	categories, err := categoriesFromFlags(*inline, *categoriesFile)
	if err != nil {
		return err
	}

	summary, err := cococonv.ConvertVOCToCOCOFile(cococonv.ConvertOptions{
		AnnotationDir:     filepath.Clean(*labelDir),
		ImageDir:          filepath.Clean(*imageDir),
		FilenamePrefix:    *prefix,
		FilenameExtension: *ext,
		Categories:        categories,
		OnBadObject:       policy,
	}, filepath.Clean(*outPath))
	if err != nil {
		return err
	}

	printConvertSummary(os.Stdout, summary)
	return nil
}

func runPrune(fs *flag.FlagSet, args []string) error {
	imageDir := fs.String("images", "", "The `path` to the image directory")
	cocoPath := fs.String("coco", "", "The `path` to the COCO JSON file, rewritten in place")
	exts := fs.String("ext", strings.Join(cococonv.DefaultImageExtensions, ","),
		"Comma-separated image file `extensions` considered for deletion")
	stripField := fs.String("strip-field", "",
		"An annotation `field` to remove from every annotation, e.g. segmentation")
	dryRun := fs.Bool("dry-run", false, "Only report what would be deleted")
	_ = fs.Parse(args)

	if *imageDir == "" || *cocoPath == "" {
		return usageErrorf("Missing image directory or COCO file path argument")
	}
	var extensions []string
	for _, v := range strings.Split(*exts, ",") {
		if v = strings.TrimSpace(v); v != "" {
			extensions = append(extensions, v)
		}
	}
	if len(extensions) == 0 {
		return usageErrorf("Missing image file extensions")
	}

	result, err := cococonv.Prune(cococonv.PruneOptions{
		ImageDir:        filepath.Clean(*imageDir),
		COCOPath:        filepath.Clean(*cocoPath),
		ImageExtensions: extensions,
		StripField:      *stripField,
		DryRun:          *dryRun,
	})
	if err != nil {
		return err
	}

	printPruneResult(os.Stdout, result, *dryRun)
	return nil
}

func runOverlap(fs *flag.FlagSet, args []string) error {
	labelDir := fs.String("labels", "", "The `path` to the VOC annotation directory")
	cropWidth := fs.Int("crop-width", 320, "The crop width in `pixels`")
	cropHeight := fs.Int("crop-height", 0, "The crop height in `pixels` (zero uses -crop-width)")
	onBadObject := fs.String("on-bad-object", "abort",
		"What to do with objects with missing or invalid bounding boxes {abort, skip}")
	_ = fs.Parse(args)

	if *labelDir == "" {
		return usageErrorf("Missing label input path argument")
	}
	if *cropHeight == 0 {
		*cropHeight = *cropWidth
	}
	if *cropWidth <= 0 || *cropHeight <= 0 {
		return usageErrorf("Invalid crop size")
	}
	policy, err := cococonv.ParseObjectPolicy(*onBadObject)
	if err != nil {
		return usageErrorf("Invalid -on-bad-object: %v", err)
	}

	estimate, err := cococonv.EstimateOverlap(filepath.Clean(*labelDir), *cropWidth, *cropHeight,
		policy)
	if err != nil {
		return err
	}

	printOverlapEstimate(os.Stdout, estimate)
	return nil
}

func runTile(fs *flag.FlagSet, args []string) error {
	cocoPath := fs.String("coco", "", "The `path` to the COCO JSON input file")
	imageDir := fs.String("images", "", "The `path` to the image input directory")
	cocoOut := fs.String("coco-out", "", "The `path` to the COCO JSON output file for the tiles")
	imageOutDir := fs.String("images-out", "", "The `path` to the tile output directory")
	cropWidth := fs.Int("crop-width", 320, "The tile width in `pixels`")
	cropHeight := fs.Int("crop-height", 0, "The tile height in `pixels` (zero uses -crop-width)")
	overlapX := fs.Float64("overlap-x", 0, "The horizontal overlap `fraction` in [0.0, 1.0)")
	overlapY := fs.Float64("overlap-y", -1,
		"The vertical overlap `fraction` in [0.0, 1.0) (negative uses -overlap-x)")
	minVisible := fs.Float64("min-visible", cococonv.DefaultMinVisible,
		"The min. `fraction` of an object's area inside a tile to keep its annotation")
	keepEmpty := fs.Bool("keep-empty", false, "Keep tiles without annotations")
	jpegQuality := fs.Int("jpeg-quality", 95, "The quality to use when encoding JPEGs [1, 100]")
	_ = fs.Parse(args)

	if *cocoPath == "" || *imageDir == "" || *cocoOut == "" || *imageOutDir == "" {
		return usageErrorf("Missing input or output path argument")
	}
	if *cropHeight == 0 {
		*cropHeight = *cropWidth
	}
	if *overlapY < 0 {
		*overlapY = *overlapX
	}
	if filepath.Clean(*cocoPath) == filepath.Clean(*cocoOut) {
		return usageErrorf("The COCO input and output paths cannot be identical")
	}

	summary, err := cococonv.TileCOCOFile(filepath.Clean(*cocoPath), filepath.Clean(*cocoOut),
		cococonv.TileOptions{
			ImageDir:    filepath.Clean(*imageDir),
			OutImageDir: filepath.Clean(*imageOutDir),
			CropWidth:   *cropWidth,
			CropHeight:  *cropHeight,
			OverlapW:    *overlapX,
			OverlapH:    *overlapY,
			MinVisible:  *minVisible,
			KeepEmpty:   *keepEmpty,
			JPEGQuality: *jpegQuality,
		})
	if err != nil {
		return err
	}

	printTileSummary(os.Stdout, summary)
	return nil
}

func runTFRecord(fs *flag.FlagSet, args []string) error {
	cocoPath := fs.String("coco", "", "The `path` to the COCO JSON input file")
	imageDir := fs.String("images", "", "The `path` to the image directory")
	outPath := fs.String("out", "", "The TFRecord output file `path`")
	labelMapPath := fs.String("label-map", "", "The TFRecord label map output file `path`")
	numShards := fs.Int("num-shards", 1, "The number of shard files to create")
	_ = fs.Parse(args)

	if *cocoPath == "" || *imageDir == "" || *outPath == "" || *labelMapPath == "" {
		return usageErrorf("Missing input or output path argument")
	}
	if *numShards < 1 {
		return usageErrorf("Invalid -num-shards: %d", *numShards)
	}

	doc, err := cococonv.ReadCOCO(filepath.Clean(*cocoPath))
	if err != nil {
		return err
	}
	return cococonv.WriteTFRecord(filepath.Clean(*outPath), filepath.Clean(*labelMapPath), doc,
		filepath.Clean(*imageDir), *numShards)
}

func runBatch(fs *flag.FlagSet, args []string) error {
	configPath := fs.String("config", "", "The `path` to the YAML batch configuration")
	_ = fs.Parse(args)

	if *configPath == "" {
		return usageErrorf("Missing -config")
	}
	cfg, err := cococonv.LoadBatchConfig(*configPath)
	if err != nil {
		return err
	}

	summaries, err := cococonv.RunBatch(cfg)
	for i, summary := range summaries {
		printDatasetHeader(os.Stdout, cfg.Datasets[i].Name)
		printConvertSummary(os.Stdout, summary)
	}
	return err
}
