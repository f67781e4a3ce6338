package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ligun0805/bundle-monitor/internal/bundlecore"
)

// JSONFile writes the latest result to a single pretty-printed file,
// replacing what was there.
type JSONFile struct {
	Path string
	mu   sync.Mutex
}

func NewJSONFile(path string) *JSONFile { return &JSONFile{Path: path} }

func (j *JSONFile) Save(_ context.Context, r bundlecore.Result) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	dir := filepath.Dir(j.Path)
	tmp, err := os.CreateTemp(dir, ".bundle_result-*")
	if err != nil {
		return fmt.Errorf("result file: %w", err)
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("result file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("result file: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("result file: %w", err)
	}
	return nil
}
