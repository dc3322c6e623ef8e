// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// isMissing reports whether a CSV cell encodes a missing value
func isMissing(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NA", "NAN", "NULL":
		return true
	}
	return false
}

// LoadCSV loads a CSV file with a header row into a Dataset.
// Empty, NA, NaN and NULL cells become NaN.
func LoadCSV(path string) (*Dataset, error) {
	// 1. Open file
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ds, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ReadCSV reads a header row and numeric data rows from r.
func ReadCSV(r io.Reader) (*Dataset, error) {
	// 2. Make CSV reader
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	// 3. Read header row
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("empty header")
	}
	K := len(header) // number of columns
	for j := range header {
		header[j] = strings.TrimSpace(header[j])
	}

	var (
		data []float64 // flat data for mat.Dense
		row  int       // row counter
	)

	// 4. Read each data row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err) // +2 for header + 1-based
		}

		// Skip completely empty lines
		if len(record) == 1 && record[0] == "" {
			continue
		}

		if len(record) != K {
			return nil, fmt.Errorf(
				"row %d: expected %d columns, got %d",
				row+2, K, len(record),
			)
		}

		for j, s := range record {
			if isMissing(s) {
				data = append(data, math.NaN())
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf(
					"parse float at row %d col %d (%q): %w",
					row+2, j+1, s, err,
				)
			}
			data = append(data, v)
		}
		row++
	}

	if row == 0 {
		return nil, fmt.Errorf("no data rows")
	}

	// 5. Build Dataset
	return NewDataset(header, row, data)
}

// WriteResultCSV writes one line per effect with the columns:
// Effect, Estimate, Variance, StdError
// estimates may be empty, in which case the Estimate column is NA
func WriteResultCSV(path string, estimates NamedVector, res *EstimationResult) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	writer := csv.NewWriter(file)

	// Write header
	header := []string{"Effect", "Estimate", "Variance", "StdError"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, name := range res.Names {
		est := "NA"
		if v, ok := estimates.Get(name); ok {
			est = strconv.FormatFloat(v, 'g', -1, 64)
		}
		variance := math.NaN()
		if vs := res.Variances[name]; len(vs) > 0 {
			variance = vs[0]
		}
		record := []string{
			name,
			est,
			strconv.FormatFloat(variance, 'g', -1, 64),
			strconv.FormatFloat(math.Sqrt(variance), 'g', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteCovarianceCSV writes a labelled covariance matrix, first column holds
// the row labels.
func WriteCovarianceCSV(path string, cov *CovarianceMatrix) (err error) {
	if cov == nil || cov.Matrix == nil {
		return fmt.Errorf("no covariance matrix to write")
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	writer := csv.NewWriter(file)

	header := append([]string{""}, cov.Names...)
	if err := writer.Write(header); err != nil {
		return err
	}

	n := cov.Dim()
	for i := 0; i < n; i++ {
		record := make([]string, n+1)
		record[0] = cov.Names[i]
		for j := 0; j < n; j++ {
			record[j+1] = strconv.FormatFloat(cov.Matrix.At(i, j), 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
