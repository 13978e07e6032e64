package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/skobkin/isxgo/internal/protocol"
)

var csvHeader = []string{"Frequency ID", "Real Part", "Imaginary Part"}

// WriteCSV writes one row per result under the standard header.
func WriteCSV(w io.Writer, results []protocol.MeasurementResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range results {
		row := []string{
			strconv.Itoa(int(r.FrequencyID)),
			strconv.FormatFloat(float64(r.Real), 'g', -1, 32),
			strconv.FormatFloat(float64(r.Imaginary), 'g', -1, 32),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	return nil
}

// CSVSink overwrites Path with the results of each run.
type CSVSink struct {
	Path string
}

func (s CSVSink) Name() string {
	return "csv"
}

func (s CSVSink) Write(_ context.Context, rec Record) error {
	path := filepath.Clean(s.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create csv dir: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 -- path comes from user configuration.
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := WriteCSV(f, rec.Report.Results); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close csv: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename csv: %w", err)
	}

	return nil
}
