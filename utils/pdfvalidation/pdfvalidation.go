package pdfvalidation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Limits defines the validation limits for PDF uploads
type Limits struct {
	MaxFileSizeMB int
	MaxPages      int
}

// DefaultLimits applies to project document uploads
var DefaultLimits = Limits{
	MaxFileSizeMB: 100,
	MaxPages:      2000,
}

// ValidationResult contains the result of PDF validation
type ValidationResult struct {
	Valid     bool
	PageCount int
	FileSize  int64
	Error     string
}

// IsPDF reports whether the filename has a .pdf extension
func IsPDF(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

// ValidatePDF checks size and page count before the bytes are sent to the
// remote provider. Corrupt files fail here instead of surfacing as an
// opaque remote ingestion error later.
func ValidatePDF(content []byte, limits Limits) *ValidationResult {
	result := &ValidationResult{
		FileSize: int64(len(content)),
	}

	maxBytes := int64(limits.MaxFileSizeMB) * 1024 * 1024
	if result.FileSize > maxBytes {
		result.Error = fmt.Sprintf("file exceeds the %dMB size limit", limits.MaxFileSizeMB)
		return result
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), result.FileSize)
	if err != nil {
		result.Error = fmt.Sprintf("file is not a readable PDF: %v", err)
		return result
	}

	result.PageCount = reader.NumPage()
	if limits.MaxPages > 0 && result.PageCount > limits.MaxPages {
		result.Error = fmt.Sprintf("PDF has %d pages, exceeding the %d page limit", result.PageCount, limits.MaxPages)
		return result
	}

	result.Valid = true
	return result
}
