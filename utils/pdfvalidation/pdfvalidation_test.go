package pdfvalidation

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("report.pdf"))
	assert.True(t, IsPDF("REPORT.PDF"))
	assert.False(t, IsPDF("notes.txt"))
	assert.False(t, IsPDF("archive.pdf.zip"))
	assert.False(t, IsPDF("pdf"))
}

func TestValidatePDFRejectsOversizedFiles(t *testing.T) {
	limits := Limits{MaxFileSizeMB: 1, MaxPages: 10}
	content := bytes.Repeat([]byte("x"), 2*1024*1024)

	result := ValidatePDF(content, limits)
	require.False(t, result.Valid)
	assert.Contains(t, result.Error, "size limit")
	assert.Equal(t, int64(len(content)), result.FileSize)
}

func TestValidatePDFRejectsCorruptContent(t *testing.T) {
	result := ValidatePDF([]byte("this is not a pdf"), DefaultLimits)
	require.False(t, result.Valid)
	assert.Contains(t, result.Error, "not a readable PDF")
}

func TestValidatePDFRejectsEmptyContent(t *testing.T) {
	result := ValidatePDF(nil, DefaultLimits)
	require.False(t, result.Valid)
}
