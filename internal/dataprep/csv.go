// Package dataprep loads raw numeric series from CSV and cleans them
// without looking ahead.
package dataprep

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
)

// LoadOptions controls LoadCSV.
type LoadOptions struct {
	// HasHeader skips the first record.
	HasHeader bool
	// TargetIdx lists the target channels of the loaded series.
	TargetIdx []int
}

// LoadCSVFile opens path and parses it with LoadCSV.
func LoadCSVFile(path string, opts LoadOptions) (models.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Series{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return LoadCSV(f, opts)
}

// LoadCSV parses a numeric CSV into a series: one row per timestep, one
// column per channel. Empty cells and NaN/null markers become NaN so Clean
// can deal with them; any other non-numeric cell is an error.
func LoadCSV(r io.Reader, opts LoadOptions) (models.Series, error) {
	reader := csv.NewReader(bufio.NewReaderSize(r, 1<<20))
	reader.TrimLeadingSpace = true

	if opts.HasHeader {
		if _, err := reader.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return models.Series{}, utils.NewValidationError("csv is empty")
			}
			return models.Series{}, fmt.Errorf("read header: %w", err)
		}
	}

	var rows [][]float64
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Series{}, fmt.Errorf("read csv: %w", err)
		}
		row := make([]float64, len(rec))
		for c, cell := range rec {
			v, err := parseCell(cell)
			if err != nil {
				return models.Series{}, utils.NewValidationErrorf("record %d column %d: %v", line, c, err)
			}
			row[c] = v
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return models.Series{}, utils.NewValidationError("csv has no data rows")
	}
	return models.NewSeries(rows, opts.TargetIdx)
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	switch strings.ToLower(cell) {
	case "", "nan", "null", "na":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", cell)
	}
	return v, nil
}

// WriteCSV writes the series values, one row per timestep, with an optional
// header of channel names.
func WriteCSV(w io.Writer, series models.Series, header []string) error {
	writer := csv.NewWriter(w)
	if len(header) > 0 {
		if len(header) != series.Channels() {
			return utils.NewValidationErrorf("header has %d names for %d channels", len(header), series.Channels())
		}
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	record := make([]string, series.Channels())
	for t := 0; t < series.Len(); t++ {
		for c, v := range series.RawRow(t) {
			record[c] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
