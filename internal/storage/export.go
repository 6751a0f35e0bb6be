package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pauljones0/catalog-crawler/internal/models"
)

// FileExporter writes each run's records to <dir>/<runID>.json.
type FileExporter struct {
	dir string
}

func NewFileExporter(dir string) *FileExporter {
	return &FileExporter{dir: dir}
}

type exportFile struct {
	RunID    string            `json:"run_id"`
	Listings []models.Listing  `json:"listings"`
	Offers   []models.OfferRow `json:"offers"`
}

// Export writes to a temporary file first so a partially written run never
// replaces a complete one.
func (e *FileExporter) Export(_ context.Context, runID string, listings []models.Listing, offers []models.OfferRow) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(e.dir, runID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exportFile{RunID: runID, Listings: listings, Offers: offers}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}
	return os.Rename(tmp.Name(), e.Path(runID))
}

// Path returns the file a run is exported to.
func (e *FileExporter) Path(runID string) string {
	return filepath.Join(e.dir, runID+".json")
}
