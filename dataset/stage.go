package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/pkg/log"
)

// TargetCandidates are the source column names recognised as the label, in
// priority order. Matching happens after lower-casing.
var TargetCandidates = []string{"medv", TargetColumn}

// Process lower-cases every column name and renames the first present
// target candidate to "target". Remaining candidate columns are dropped so
// the result holds exactly one label column. Process is pure.
func Process(f *frame.Frame) (*frame.Frame, error) {
	seen := make(map[string]string, f.Width())
	for _, name := range f.Names() {
		lower := strings.ToLower(name)
		if prev, dup := seen[lower]; dup {
			return nil, errors.NewValueError("dataset.Process",
				fmt.Sprintf("columns '%s' and '%s' collide after lower-casing", prev, name))
		}
		seen[lower] = name
	}
	out, err := f.MapNames(strings.ToLower)
	if err != nil {
		return nil, err
	}

	found := ""
	var extra []string
	for _, c := range TargetCandidates {
		if !out.Has(c) {
			continue
		}
		if found == "" {
			found = c
			continue
		}
		extra = append(extra, c)
	}
	if found == "" {
		return out, nil
	}
	out = out.Drop(extra...)
	if found == TargetColumn {
		return out, nil
	}
	return out.Rename(map[string]string{found: TargetColumn})
}

// SaveOption configures SaveRaw and SaveProcessed.
type SaveOption func(*saveConfig)

type saveConfig struct {
	progress io.Writer
}

// WithProgress tees the written CSV bytes into w (for example a progress bar).
func WithProgress(w io.Writer) SaveOption {
	return func(c *saveConfig) { c.progress = w }
}

// SaveRaw writes f unchanged to dir/name and returns the path.
func SaveRaw(f *frame.Frame, dir, name string, opts ...SaveOption) (string, error) {
	path := filepath.Join(dir, name)
	if err := writeCSV(f, path, opts); err != nil {
		return "", err
	}
	log.GetLoggerWithName("dataset").Info("Dataset saved (raw)", log.ArtifactPathKey, path)
	return path, nil
}

// SaveProcessed applies Process to f and writes the result to dir/name.
func SaveProcessed(f *frame.Frame, dir, name string, opts ...SaveOption) (string, error) {
	processed, err := Process(f)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := writeCSV(processed, path, opts); err != nil {
		return "", err
	}
	log.GetLoggerWithName("dataset").Info("Dataset saved (processed)", log.ArtifactPathKey, path)
	return path, nil
}

func writeCSV(f *frame.Frame, path string, opts []SaveOption) error {
	var cfg saveConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.progress == nil {
		return f.WriteCSVFile(path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := f.WriteCSV(io.MultiWriter(file, cfg.progress)); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "close %s", path)
}
