package cococonv

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTFLabelMap(t *testing.T) {
	labels := newTFLabelMap(Categories{
		{ID: 0, Name: "human"},
		{ID: 5, Name: "car"},
		{ID: 5, Name: "duplicate"},
	})

	require.Len(t, labels, 2)
	assert.Equal(t, int64(1), labels[0].id)
	assert.Equal(t, "human", labels[0].name)
	assert.Equal(t, int64(2), labels[5].id)
	assert.Equal(t, "car", labels[5].name)
}

func TestToTFRecord(t *testing.T) {
	imageDir := t.TempDir()
	writeTestImage(t, imageDir, "a.png", 20, 10)

	features, err := toTFRecord(COCOImage{FileName: "a.png", Width: 20, Height: 10, ID: 3},
		[]COCOAnnotation{
			{ID: 1, ImageID: 3, CategoryID: 0, Bbox: [4]int{2, 1, 10, 5}, Area: 50},
			{ID: 2, ImageID: 3, CategoryID: 42, Bbox: [4]int{0, 0, 1, 1}, Area: 1},
		}, imageDir, newTFLabelMap(humanCategories))
	require.NoError(t, err)

	assert.Equal(t, 20, features["image/width"])
	assert.Equal(t, 10, features["image/height"])
	assert.Equal(t, "a.png", features["image/filename"])
	assert.Equal(t, "3", features["image/source_id"])
	assert.Equal(t, "png", features["image/format"])
	assert.NotEmpty(t, features["image/encoded"])
	assert.Equal(t, []float32{0.1}, features["image/object/bbox/xmin"])
	assert.Equal(t, []float32{0.1}, features["image/object/bbox/ymin"])
	assert.Equal(t, []float32{0.6}, features["image/object/bbox/xmax"])
	assert.Equal(t, []float32{0.6}, features["image/object/bbox/ymax"])
	assert.Equal(t, []string{"human"}, features["image/object/class/text"])
	assert.Equal(t, []int64{1}, features["image/object/class/label"])
}

func TestWriteTFRecord(t *testing.T) {
	imageDir := t.TempDir()
	writeTestImage(t, imageDir, "a.png", 20, 10)
	writeTestImage(t, imageDir, "b.png", 8, 8)
	writeTestImage(t, imageDir, "c.jpg", 8, 8)

	doc := Document{
		Images: []COCOImage{
			{FileName: "a.png", Width: 20, Height: 10, ID: 1},
			{FileName: "b.png", Width: 8, Height: 8, ID: 2},
			{FileName: "c.jpg", Width: 8, Height: 8, ID: 3},
		},
		Annotations: []COCOAnnotation{
			{ID: 1, ImageID: 1, CategoryID: 0, Bbox: [4]int{2, 1, 10, 5}, Area: 50},
			{ID: 2, ImageID: 3, CategoryID: 0, Bbox: [4]int{0, 0, 4, 4}, Area: 16},
		},
		Categories: humanCategories,
	}

	outDir := t.TempDir()
	recordPath := filepath.Join(outDir, "train.record")
	labelMapPath := filepath.Join(outDir, "label_map.pbtxt")
	require.NoError(t, WriteTFRecord(recordPath, labelMapPath, doc, imageDir, 2))

	for _, suffix := range []string{"-00000-of-00002", "-00001-of-00002"} {
		enc, err := os.ReadFile(recordPath + suffix)
		require.NoError(t, err)
		// Each record starts with its little endian uint64 length.
		require.Greater(t, len(enc), 16)
		length := binary.LittleEndian.Uint64(enc[:8])
		assert.Greater(t, length, uint64(0))
		assert.True(t, bytes.Contains(enc, []byte("image/object/class/label")))
	}

	labelMap, err := os.ReadFile(labelMapPath)
	require.NoError(t, err)
	assert.Equal(t, "item {\n  name: \"human\"\n  id: 1\n}\n", string(labelMap))
}

func TestWriteTFRecordSkipsMissingImages(t *testing.T) {
	outDir := t.TempDir()
	recordPath := filepath.Join(outDir, "test.record")
	doc := Document{
		Images:     []COCOImage{{FileName: "missing.png", Width: 1, Height: 1, ID: 1}},
		Categories: humanCategories,
	}

	require.NoError(t, WriteTFRecord(recordPath, filepath.Join(outDir, "map.pbtxt"), doc,
		t.TempDir(), 1))

	info, err := os.Stat(recordPath)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestWriteTFRecordCreatesEveryShard(t *testing.T) {
	imageDir := t.TempDir()
	writeTestImage(t, imageDir, "a.png", 4, 4)

	tests := []struct {
		name   string
		images []COCOImage
		shards int
		paths  []string
	}{
		{"empty document", nil, 1, []string{""}},
		{"empty document sharded", nil, 2, []string{"-00000-of-00002", "-00001-of-00002"}},
		{"fewer images than shards", []COCOImage{{FileName: "a.png", Width: 4, Height: 4, ID: 1}}, 3,
			[]string{"-00000-of-00003", "-00001-of-00003", "-00002-of-00003"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			outDir := t.TempDir()
			recordPath := filepath.Join(outDir, "train.record")
			doc := Document{Images: tc.images, Categories: humanCategories}
			require.NoError(t, WriteTFRecord(recordPath, filepath.Join(outDir, "map.pbtxt"), doc,
				imageDir, tc.shards))

			for _, suffix := range tc.paths {
				assert.FileExists(t, recordPath+suffix)
			}
			// The shards and the label map.
			entries, err := os.ReadDir(outDir)
			require.NoError(t, err)
			assert.Len(t, entries, len(tc.paths)+1)
		})
	}
}

func TestTextFormatQuote(t *testing.T) {
	assert.Equal(t, `"human"`, textFormatQuote("human"))
	assert.Equal(t, `"say \"hi\"\\n"`, textFormatQuote(`say "hi"\n`))
	assert.Equal(t, `"a\tb\n"`, textFormatQuote("a\tb\n"))
	assert.Equal(t, `"caf\303\251"`, textFormatQuote("café"))
}

func TestSaveTFRecordLabelMapEscapesNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.pbtxt")
	categories := Categories{{ID: 0, Name: "piéton"}}
	require.NoError(t, saveTFRecordLabelMap(path, categories, newTFLabelMap(categories)))

	labelMap, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "item {\n  name: \"pi\\303\\251ton\"\n  id: 1\n}\n", string(labelMap))
}
