// Package store persists per-lender history and current-rates
// documents, either on the local filesystem or in Postgres. Absent
// documents are reported through the ok flag rather than an error.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/history"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
	"go.uber.org/zap"
)

var _ history.Store = &Filesystem{}

// Filesystem keeps documents as pretty-printed JSON under
// <dir>/history/<lenderId>.json and <dir>/rates/<lenderId>.json.
// Writes go through a temp file plus rename so a crash mid-write never
// leaves a half-written document behind.
type Filesystem struct {
	dir    string
	logger *zap.Logger
}

func NewFilesystem(dir string, logger *zap.Logger) *Filesystem {
	return &Filesystem{dir: dir, logger: logger}
}

func (s *Filesystem) historyPath(lenderID string) string {
	return filepath.Join(s.dir, "history", lenderID+".json")
}

func (s *Filesystem) ratesPath(lenderID string) string {
	return filepath.Join(s.dir, "rates", lenderID+".json")
}

func (s *Filesystem) LoadHistory(_ context.Context, lenderID string) (*model.RatesHistoryFile, bool, error) {
	var h model.RatesHistoryFile
	ok, err := s.readJSON(s.historyPath(lenderID), &h)
	if err != nil || !ok {
		return nil, false, err
	}
	return &h, true, nil
}

func (s *Filesystem) SaveHistory(_ context.Context, h *model.RatesHistoryFile) error {
	return s.writeJSON(s.historyPath(h.LenderID), h)
}

func (s *Filesystem) LoadCurrent(_ context.Context, lenderID string) (*model.CurrentRates, bool, error) {
	var c model.CurrentRates
	ok, err := s.readJSON(s.ratesPath(lenderID), &c)
	if err != nil || !ok {
		return nil, false, err
	}
	return &c, true, nil
}

func (s *Filesystem) SaveCurrent(_ context.Context, c *model.CurrentRates) error {
	return s.writeJSON(s.ratesPath(c.LenderID), c)
}

func (s *Filesystem) readJSON(path string, out any) (bool, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return true, nil
}

func (s *Filesystem) writeJSON(path string, doc any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	s.logger.Debug("wrote document", zap.String("path", path), zap.Int("bytes", len(raw)))
	return nil
}
