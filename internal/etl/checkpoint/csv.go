package checkpoint

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
)

// CSVArtifact appends records to a CSV file, syncing after every record so
// an interrupted run loses at most the record in flight.
type CSVArtifact struct {
	path string

	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	keys map[terminology.Key]struct{}
}

// OpenCSV opens (or creates) the artifact at path and loads the keys it
// already holds. The header is written only when the file is new.
func OpenCSV(path string) (*CSVArtifact, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	a := &CSVArtifact{path: path, keys: make(map[terminology.Key]struct{})}
	existing, err := a.read()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, rec := range existing {
		a.keys[rec.Key()] = struct{}{}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat artifact: %w", err)
	}

	a.f = f
	a.w = csv.NewWriter(f)
	if info.Size() == 0 {
		if err := a.writeRow(Columns); err != nil {
			f.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *CSVArtifact) Contains(key terminology.Key) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.keys[key]
	return ok
}

func (a *CSVArtifact) Append(_ context.Context, rec Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writeRow(rec.fields()); err != nil {
		return err
	}
	a.keys[rec.Key()] = struct{}{}
	return nil
}

func (a *CSVArtifact) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.keys)
}

// Records reads every record back from disk in file order.
func (a *CSVArtifact) Records(_ context.Context) ([]Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.read()
}

func (a *CSVArtifact) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	a.w.Flush()
	err := errors.Join(a.w.Error(), a.f.Close())
	a.f = nil
	return err
}

func (a *CSVArtifact) writeRow(fields []string) error {
	if err := a.w.Write(fields); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		return fmt.Errorf("flush artifact: %w", err)
	}
	if err := a.f.Sync(); err != nil {
		return fmt.Errorf("sync artifact: %w", err)
	}
	return nil
}

func (a *CSVArtifact) read() ([]Record, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	col := func(row []string, name string) string {
		if i, ok := idx[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	var out []Record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read artifact: %w", err)
		}
		out = append(out, Record{
			NamasteCode:   col(row, "namaste_code"),
			NamasteSystem: col(row, "namaste_system"),
			ICDCode:       col(row, "icd_code"),
			ICDTitle:      col(row, "icd_title"),
			Relationship:  col(row, "relationship"),
		})
	}
	return out, nil
}
