package cococonv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVOCFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.xml", `<?xml version="1.0"?>
<annotation>
	<folder>trainImages</folder>
	<filename> BRA_1001 </filename>
	<size>
		<width>4000</width>
		<height>3000</height>
		<depth>3</depth>
	</size>
	<segmented>0</segmented>
	<object>
		<name>human</name>
		<difficult>0</difficult>
		<bndbox>
			<xmin>1</xmin>
			<ymin> 2 </ymin>
			<xmax>11</xmax>
			<ymax>22</ymax>
		</bndbox>
	</object>
	<object>
		<name>human</name>
		<bndbox><xmin>5</xmin><ymin>5</ymin><xmax>4</xmax><ymax>9</ymax></bndbox>
	</object>
	<object>
		<bndbox><xmin>5</xmin><ymin>5</ymin><xmax>6</xmax><ymax>9</ymax></bndbox>
	</object>
	<object>
		<name>human</name>
		<bndbox><xmin>5.5</xmin><ymin>5</ymin><xmax>6</xmax><ymax>9</ymax></bndbox>
	</object>
</annotation>`)

	fileData, err := parseVOCFile(path)
	require.NoError(t, err)

	assert.Equal(t, "BRA_1001", fileData.FileName)
	assert.Equal(t, 4000, fileData.Width)
	assert.Equal(t, 3000, fileData.Height)
	require.Len(t, fileData.Objects, 1)
	assert.Equal(t, VOCObject{Name: "human", Coords: [4]int{1, 2, 11, 22}}, fileData.Objects[0])
	assert.Equal(t, 10, fileData.Objects[0].Width())
	assert.Equal(t, 20, fileData.Objects[0].Height())

	// Inverted box, missing name and non-integer bound.
	require.Len(t, fileData.BadObjects, 3)
	for _, err := range fileData.BadObjects {
		assert.True(t, errors.Is(err, ErrMalformedObject))
	}
}

func TestParseVOCFileEmptyRoot(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"self closing", "<annotation/>"},
		{"whitespace only", "<annotation>\n  \n</annotation>"},
		{"text only", "<annotation>no children</annotation>"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "a.xml", tc.content)
			_, err := parseVOCFile(path)
			assert.True(t, errors.Is(err, ErrEmptyAnnotation))
		})
	}
}

func TestParseVOCFileUnknownChildrenAreNotEmpty(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.xml", "<annotation><folder>x</folder></annotation>")
	_, err := parseVOCFile(path)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEmptyAnnotation))
}

func TestParseVOCFileDeclaredEncoding(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.xml", "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n"+
		"<annotation><filename>caf\xe9</filename>"+
		"<size><width>4</width><height>3</height></size>"+
		"<object><name>human</name><bndbox><xmin>0</xmin><ymin>0</ymin><xmax>1</xmax>"+
		"<ymax>1</ymax></bndbox></object></annotation>")

	fileData, err := parseVOCFile(path)
	require.NoError(t, err)
	assert.Equal(t, "café", fileData.FileName)
	assert.Equal(t, 4, fileData.Width)
	assert.Len(t, fileData.Objects, 1)
}

func TestParseVOCFileDefersSizeErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.xml",
		"<annotation><filename>a</filename><size><width>x</width><height>1</height></size></annotation>")

	fileData, err := parseVOCFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a", fileData.FileName)
	err = fileData.checkSize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid <width>")
}
