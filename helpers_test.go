package cococonv

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func init() {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	SetLogger(quiet)
}

var humanCategories = Categories{{Supercategory: "none", ID: 0, Name: "human"}}

// vocXML returns a VOC annotation document for the given image and objects.
func vocXML(filename string, width, height int, objs ...VOCObject) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<annotation>\n\t<folder>images</folder>\n\t<filename>%s</filename>\n", filename)
	fmt.Fprintf(&b, "\t<size><width>%d</width><height>%d</height><depth>3</depth></size>\n",
		width, height)
	for _, o := range objs {
		fmt.Fprintf(&b, "\t<object><name>%s</name><pose>Unspecified</pose><bndbox>"+
			"<xmin>%d</xmin><ymin>%d</ymin><xmax>%d</xmax><ymax>%d</ymax></bndbox></object>\n",
			o.Name, o.Coords[0], o.Coords[1], o.Coords[2], o.Coords[3])
	}
	b.WriteString("</annotation>\n")
	return b.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// writeTestImage writes a solid color image of the given size, encoded by the file extension.
func writeTestImage(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 40, G: 120, B: 200, A: 255})
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path))
	return path
}

func imageSize(t *testing.T, path string) image.Point {
	t.Helper()
	config, _, err := decodeImageConfig(path)
	require.NoError(t, err)
	return image.Pt(config.Width, config.Height)
}

// datasetDirs creates empty annotation and image directories.
func datasetDirs(t *testing.T) (labelDir, imageDir string) {
	t.Helper()
	root := t.TempDir()
	labelDir = filepath.Join(root, "labels")
	imageDir = filepath.Join(root, "images")
	require.NoError(t, os.Mkdir(labelDir, 0755))
	require.NoError(t, os.Mkdir(imageDir, 0755))
	return labelDir, imageDir
}
