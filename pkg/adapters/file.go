package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/HatiCode/plugcast/pkg/series"
)

// FileAdapter reads occupancy history from a tab-separated file with lines of
// the form "2006-01-02 15:04:05<TAB>0|1".
//
// The window is applied relative to the latest timestamp in the file rather
// than the wall clock, so archived files remain usable.
type FileAdapter struct {
	Path string
}

func (f *FileAdapter) Name() string { return "file" }

// Collect implements Adapter.
func (f *FileAdapter) Collect(ctx context.Context, window time.Duration) ([]series.Observation, error) {
	if f.Path == "" {
		return nil, errors.New("file adapter: path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer file.Close()

	obs, err := series.ParseTSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}

	return trimToWindow(obs, window), nil
}
