// Package export provides export/import service interfaces.
package export

import (
	"io"
	"time"
)

// ExportServiceInterface defines the contract for export services.
// This interface allows mocking for testing.
type ExportServiceInterface interface {
	// Export writes the whole store to w.
	Export(w io.Writer, indent bool) (*ExportResult, error)

	// ExportFile writes the whole store to config.OutputPath.
	ExportFile(config *ExportConfig) (*ExportResult, error)

	// Import restores records from r, ids verbatim.
	Import(r io.Reader) (*ImportResult, error)

	// LoadSeed inserts seed records with fresh ids.
	LoadSeed(r io.Reader, now time.Time) (*ImportResult, error)
}

// Ensure *ExportService implements the interface at compile time.
var _ ExportServiceInterface = (*ExportService)(nil)
