package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/harrisonrobin/weworkmcp/pkg/analysis"
)

// utf8BOM is written ahead of the header row.
const utf8BOM = "\ufeff"

type CSVExporter struct {
	OutputDir string

	create func(path string) (io.WriteCloser, error)
}

func NewCSVExporter(outputDir string) *CSVExporter {
	return &CSVExporter{OutputDir: outputDir}
}

func createFile(path string) (io.WriteCloser, error) { return os.Create(path) }

var unsafeFileChars = strings.NewReplacer("/", "_", "\\", "_", "\x00", "")

// FileName returns the export file name for a project.
func FileName(projectName string) string {
	name := strings.TrimSpace(unsafeFileChars.Replace(projectName))
	if name == "" || name == "." || name == ".." {
		name = "project"
	}
	return name + "_tasks_analysis.csv"
}

// Export writes the table to <OutputDir>/<project>_tasks_analysis.csv, header first, and
// returns the written path. A failed export leaves no file behind.
func (e *CSVExporter) Export(projectName string, table *analysis.Table) (string, error) {
	dir := e.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	create := e.create
	if create == nil {
		create = createFile
	}
	path := filepath.Join(dir, FileName(projectName))
	file, err := create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	_, err = file.Write([]byte(utf8BOM))
	if err == nil {
		err = write(gocsv.NewSafeCSVWriter(csv.NewWriter(file)), table)
	}
	if err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}

func write(w *gocsv.SafeCSVWriter, table *analysis.Table) error {
	if table == nil {
		table = &analysis.Table{}
	}
	if err := w.Write(table.Columns); err != nil {
		return err
	}
	for _, rec := range table.Rows {
		row := make([]string, len(table.Columns))
		for i, c := range table.Columns {
			row[i] = rec.Get(c)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
