package mlengine

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/rand"
	"os"
	"strconv"
)

// ErrDatasetNotFound is returned when the referenced dataset file is absent.
var ErrDatasetNotFound = errors.New("mlengine: dataset not found")

// DatasetConfig is the quest-scoped evaluation config.
// Absent keys take the defaults: last column as target,
// test_size 0.2, random_state 42.
type DatasetConfig struct {
	TargetColumn string  `json:"target_column"`
	TestSize     float64 `json:"test_size"`
	RandomState  int64   `json:"random_state"`
}

// ParseDatasetConfig decodes a quest's JSON config blob. A nil or empty
// blob yields the defaults. Present keys win even at their zero value,
// so random_state 0 is a valid explicit seed.
func ParseDatasetConfig(raw []byte) (DatasetConfig, error) {
	in := struct {
		TargetColumn string   `json:"target_column"`
		TestSize     *float64 `json:"test_size"`
		RandomState  *int64   `json:"random_state"`
	}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return DatasetConfig{}, fmt.Errorf("mlengine: bad dataset config: %w", err)
		}
	}
	cfg := DatasetConfig{
		TargetColumn: in.TargetColumn,
		TestSize:     0.2,
		RandomState:  42,
	}
	if in.TestSize != nil && *in.TestSize > 0 && *in.TestSize < 1 {
		cfg.TestSize = *in.TestSize
	}
	if in.RandomState != nil {
		cfg.RandomState = *in.RandomState
	}
	return cfg, nil
}

// Split holds a dataset divided into train and test partitions.
// Only the test partition is scored; the train partition is returned so
// callers can report dataset shape in logs.
type Split struct {
	Features []string
	TrainX   [][]float64
	TrainY   []float64
	TestX    [][]float64
	TestY    []float64
}

// LoadDataset reads a comma-delimited file with a header row and splits it
// deterministically: the same (file, test_size, random_state) always
// produces the same partitions. The target column is cfg.TargetColumn, or
// the last column when unset. Non-numeric label values are mapped to class
// codes by first appearance in file order, which keeps the coding stable
// across runs.
func LoadDataset(path string, cfg DatasetConfig) (*Split, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("mlengine: read %s: %w", path, err)
	}
	if len(rows) < 3 {
		return nil, fmt.Errorf("mlengine: dataset %s has too few rows", path)
	}

	header := rows[0]
	records := rows[1:]

	targetIdx := len(header) - 1
	if cfg.TargetColumn != "" {
		targetIdx = -1
		for i, name := range header {
			if name == cfg.TargetColumn {
				targetIdx = i
				break
			}
		}
		if targetIdx < 0 {
			return nil, fmt.Errorf("mlengine: target column %q not in dataset %s", cfg.TargetColumn, path)
		}
	}

	features := make([]string, 0, len(header)-1)
	for i, name := range header {
		if i != targetIdx {
			features = append(features, name)
		}
	}

	x := make([][]float64, len(records))
	y := make([]float64, len(records))
	labels := map[string]float64{}
	for r, rec := range records {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("mlengine: row %d of %s has %d cells, want %d", r+2, path, len(rec), len(header))
		}
		row := make([]float64, 0, len(rec)-1)
		for c, cell := range rec {
			if c == targetIdx {
				y[r], err = parseLabel(cell, labels)
				if err != nil {
					return nil, fmt.Errorf("mlengine: row %d of %s: %w", r+2, path, err)
				}
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("mlengine: row %d of %s: non-numeric feature %q", r+2, path, cell)
			}
			row = append(row, v)
		}
		x[r] = row
	}

	return splitRows(features, x, y, cfg), nil
}

// parseLabel parses a target cell: numeric values pass through, anything
// else gets a class code assigned in first-appearance order.
func parseLabel(cell string, labels map[string]float64) (float64, error) {
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		return v, nil
	}
	if cell == "" {
		return 0, errors.New("empty target cell")
	}
	if code, ok := labels[cell]; ok {
		return code, nil
	}
	code := float64(len(labels))
	labels[cell] = code
	return code, nil
}

// splitRows partitions rows by a seeded permutation: the first
// round(n*testSize) shuffled indices become the test set.
func splitRows(features []string, x [][]float64, y []float64, cfg DatasetConfig) *Split {
	n := len(x)
	nTest := int(math.Round(float64(n) * cfg.TestSize))
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}

	perm := rand.New(rand.NewSource(cfg.RandomState)).Perm(n)

	s := &Split{
		Features: features,
		TrainX:   make([][]float64, 0, n-nTest),
		TrainY:   make([]float64, 0, n-nTest),
		TestX:    make([][]float64, 0, nTest),
		TestY:    make([]float64, 0, nTest),
	}
	for i, idx := range perm {
		if i < nTest {
			s.TestX = append(s.TestX, x[idx])
			s.TestY = append(s.TestY, y[idx])
		} else {
			s.TrainX = append(s.TrainX, x[idx])
			s.TrainY = append(s.TrainY, y[idx])
		}
	}
	return s
}
