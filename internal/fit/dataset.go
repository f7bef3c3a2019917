package fit

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// Point is a single 2-D sample. For curve models, X is the independent
// variable and Y the observed value; for the circle model both are spatial
// coordinates.
type Point struct {
	X, Y float64
}

// LoadPoints reads samples from a CSV file with two numeric columns. A
// single non-numeric header row is skipped.
func LoadPoints(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset is empty: %s", path)
	}

	points := make([]Point, 0, len(records))
	for i, rec := range records {
		x, errX := strconv.ParseFloat(rec[0], 64)
		y, errY := strconv.ParseFloat(rec[1], 64)
		if errX != nil || errY != nil {
			if i == 0 {
				// Header row
				continue
			}
			return nil, fmt.Errorf("bad record on line %d: %q", i+1, rec)
		}
		points = append(points, Point{X: x, Y: y})
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("dataset has no numeric records: %s", path)
	}
	return points, nil
}

// ChooseBatchSize picks the largest divisor of n not exceeding 64, so that
// the batch width divides the sample count as the kernel contract requires.
func ChooseBatchSize(n int) int {
	if n <= 0 {
		return 1
	}
	best := 1
	for d := 2; d <= 64 && d <= n; d++ {
		if n%d == 0 {
			best = d
		}
	}
	return best
}
