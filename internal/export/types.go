// Package export provides care plan export functionality for PDF and DOCX formats.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for an export operation
type Request struct {
	CarePlanID    string
	Format        Format
	IncludeVisits bool
	IncludeRisks  bool
}

// Result contains the export output
type Result struct {
	Data        []byte
	Filename    string
	MimeType    string
	GeneratedAt time.Time
}

var (
	// ErrContentUnavailable indicates care plan content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
