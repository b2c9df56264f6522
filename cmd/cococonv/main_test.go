package main

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorable/cococonv"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	log.SetOutput(io.Discard)
	cococonv.SetLogger(log)
	os.Exit(m.Run())
}

func TestCategoriesFromFlags(t *testing.T) {
	categories, err := categoriesFromFlags("0:human", "")
	require.NoError(t, err)
	assert.Equal(t, cococonv.Categories{{Supercategory: "none", ID: 0, Name: "human"}}, categories)

	var usageErr usageError
	_, err = categoriesFromFlags("", "")
	assert.True(t, errors.As(err, &usageErr))
	_, err = categoriesFromFlags("0:human", "categories.json")
	assert.True(t, errors.As(err, &usageErr))
	_, err = categoriesFromFlags("human", "")
	assert.True(t, errors.As(err, &usageErr))
}

func TestRunConvert(t *testing.T) {
	root := t.TempDir()
	labelDir := filepath.Join(root, "labels")
	require.NoError(t, os.Mkdir(labelDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(labelDir, "a.xml"), []byte(`<annotation>
<filename>a</filename><size><width>10</width><height>10</height></size>
<object><name>human</name><bndbox><xmin>1</xmin><ymin>2</ymin><xmax>3</xmax><ymax>4</ymax></bndbox></object>
</annotation>`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "test_a.JPG"), nil, 0644))
	outPath := filepath.Join(root, "coco.json")

	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	err := runConvert(fs, []string{"-labels", labelDir, "-images", root, "-prefix", "test_",
		"-ext", ".JPG", "-out", outPath, "-categories", "0:human"})
	require.NoError(t, err)

	doc, err := cococonv.ReadCOCO(outPath)
	require.NoError(t, err)
	require.Len(t, doc.Annotations, 1)
	assert.Equal(t, [4]int{1, 2, 2, 2}, doc.Annotations[0].Bbox)
}

func TestRunConvertUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing paths", []string{"-categories", "0:human"}},
		{"bad policy", []string{"-labels", "l", "-images", "i", "-categories", "0:human",
			"-on-bad-object", "maybe"}},
		{"missing categories", []string{"-labels", "l", "-images", "i"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := flag.NewFlagSet("convert", flag.ContinueOnError)
			err := runConvert(fs, tc.args)
			var usageErr usageError
			assert.True(t, errors.As(err, &usageErr))
		})
	}
}

func TestPrintConvertSummary(t *testing.T) {
	var buf bytes.Buffer
	printConvertSummary(&buf, cococonv.Summary{BadXML: 2, MissingImage: 1, Success: 5,
		Annotations: 7, UnknownCategory: 1})

	assert.Equal(t, "Process completed with 2 bad xml files, 1 missing images, and 5 no errors."+
		" 8 files processed total.\n7 annotations written (1 unknown category, 0 malformed"+
		" objects skipped)\n", buf.String())
}

func TestPrintOverlapEstimate(t *testing.T) {
	var buf bytes.Buffer
	printOverlapEstimate(&buf, cococonv.OverlapEstimate{
		CropWidth: 320, CropHeight: 320, Objects: 1, MaxWidth: 100, MaxHeight: 64,
		AvgWidth: 100, AvgHeight: 64, MaxOverlapW: 0.16, MaxOverlapH: 0.1, AvgOverlapW: 0.16,
		AvgOverlapH: 0.1,
	})

	out := buf.String()
	assert.Contains(t, out, ">>> Optimal overlap for 320 x 320 crop")
	assert.Contains(t, out, "===== Based on largest width(100) and height(64) =====\n"+
		"width overlap: 0.16\nheight overlap: 0.10\n")
}
