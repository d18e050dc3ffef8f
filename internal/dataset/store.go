package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const backupStamp = "20060102_150405"

// FileStore persists the historical dataset: a primary CSV, a secondary
// XLSX copy, timestamped backups before every overwrite, and a separate
// partial-save file for aborted runs. Single-writer semantics: one
// collector run at a time owns these files.
type FileStore struct {
	CSVPath     string
	XLSXPath    string
	BackupDir   string
	PartialPath string

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewFileStore creates a FileStore rooted at dir using the given file
// stem, e.g. stem "trends_daily" yields trends_daily.csv/.xlsx, a
// backups/ subdirectory and trends_daily_partial.csv.
func NewFileStore(dir, stem string) *FileStore {
	return &FileStore{
		CSVPath:     filepath.Join(dir, stem+".csv"),
		XLSXPath:    filepath.Join(dir, stem+".xlsx"),
		BackupDir:   filepath.Join(dir, "backups"),
		PartialPath: filepath.Join(dir, stem+"_partial.csv"),
		nowFunc:     time.Now,
	}
}

// LoadHistorical reads the primary CSV. A missing file is not an error:
// the first run starts with an empty historical dataset.
func (s *FileStore) LoadHistorical() (Dataset, bool, error) {
	if _, err := os.Stat(s.CSVPath); os.IsNotExist(err) {
		return Dataset{}, false, nil
	}
	ds, err := LoadCSV(s.CSVPath)
	if err != nil {
		return Dataset{}, true, err
	}
	return ds, true, nil
}

// SaveHistorical validates, backs up and persists the merged dataset.
// Validation failure blocks everything: no backup, no write, the
// existing files stay untouched. The backup is taken unconditionally
// before the write so a last-known-good copy exists even if the write
// itself fails. The XLSX copy is best-effort.
func (s *FileStore) SaveHistorical(ds Dataset) error {
	if err := Validate(ds); err != nil {
		return err
	}
	if err := s.ensureDir(); err != nil {
		return err
	}

	for _, path := range []string{s.CSVPath, s.XLSXPath} {
		if err := s.backup(path); err != nil {
			return err
		}
	}

	if err := WriteCSV(ds, s.CSVPath); err != nil {
		return err
	}
	zap.L().Info("historical dataset written",
		zap.String("path", s.CSVPath),
		zap.Int("rows", len(ds.Rows)),
		zap.Int("columns", len(ds.Columns)),
	)

	if err := WriteXLSX(ds, s.XLSXPath); err != nil {
		// Convenience copy only; the CSV is the source of truth.
		zap.L().Warn("secondary xlsx write failed, continuing",
			zap.String("path", s.XLSXPath),
			zap.Error(err),
		)
	}
	return nil
}

// SavePartial writes the window to the partial-save file so fetched
// data survives an aborted run. The partial file is never auto-merged;
// the promote command merges it explicitly.
func (s *FileStore) SavePartial(ds Dataset) error {
	if err := Validate(ds); err != nil {
		return err
	}
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := s.backup(s.PartialPath); err != nil {
		return err
	}
	if err := WriteCSV(ds, s.PartialPath); err != nil {
		return err
	}
	zap.L().Info("partial window saved",
		zap.String("path", s.PartialPath),
		zap.Int("rows", len(ds.Rows)),
	)
	return nil
}

// LoadPartial reads the partial-save file.
func (s *FileStore) LoadPartial() (Dataset, error) {
	return LoadCSV(s.PartialPath)
}

// RemovePartial deletes the partial-save file after promotion.
func (s *FileStore) RemovePartial() error {
	if err := os.Remove(s.PartialPath); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "dataset: remove %s", s.PartialPath)
	}
	return nil
}

func (s *FileStore) ensureDir() error {
	dir := filepath.Dir(s.CSVPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "dataset: create data dir %s", dir)
	}
	return nil
}

// backup copies path into BackupDir as <stem>_<YYYYMMDD_HHMMSS><ext>.
// Missing source files are fine (nothing to protect yet). Backups are
// append-only and never pruned here.
func (s *FileStore) backup(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(s.BackupDir, 0o755); err != nil {
		return eris.Wrapf(err, "dataset: create backup dir %s", s.BackupDir)
	}

	ext := filepath.Ext(path)
	stem := filepath.Base(path[:len(path)-len(ext)])
	dst := filepath.Join(s.BackupDir, fmt.Sprintf("%s_%s%s", stem, s.nowFunc().Format(backupStamp), ext))

	if err := copyFile(path, dst); err != nil {
		return err
	}
	zap.L().Info("backup created", zap.String("backup", dst))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "dataset: open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return eris.Wrapf(err, "dataset: copy %s to %s", src, dst)
	}
	return out.Sync()
}
