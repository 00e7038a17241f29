package mlengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const housingCSV = `sqft,rooms,price
100,1,120
150,2,180
200,2,230
250,3,290
120,1,140
180,2,210
300,4,350
90,1,110
210,3,250
160,2,190
`

func TestParseDatasetConfig_Defaults(t *testing.T) {
	cfg, err := ParseDatasetConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.TestSize)
	assert.Equal(t, int64(42), cfg.RandomState)
	assert.Empty(t, cfg.TargetColumn)
}

func TestParseDatasetConfig_Explicit(t *testing.T) {
	cfg, err := ParseDatasetConfig([]byte(`{"target_column":"price","test_size":0.3,"random_state":7}`))
	require.NoError(t, err)
	assert.Equal(t, "price", cfg.TargetColumn)
	assert.Equal(t, 0.3, cfg.TestSize)
	assert.Equal(t, int64(7), cfg.RandomState)
}

func TestParseDatasetConfig_ZeroSeedIsExplicit(t *testing.T) {
	cfg, err := ParseDatasetConfig([]byte(`{"random_state":0}`))
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.RandomState)
	assert.Equal(t, 0.2, cfg.TestSize)
}

func TestParseDatasetConfig_OutOfRangeTestSizeFallsBack(t *testing.T) {
	cfg, err := ParseDatasetConfig([]byte(`{"test_size":1.5}`))
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.TestSize)
}

func TestParseDatasetConfig_Invalid(t *testing.T) {
	_, err := ParseDatasetConfig([]byte(`{not json`))
	assert.Error(t, err)
}

func TestLoadDataset_Missing(t *testing.T) {
	_, err := LoadDataset(filepath.Join(t.TempDir(), "nope.csv"), DatasetConfig{TestSize: 0.2, RandomState: 42})
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestLoadDataset_TargetColumnDefaultsToLast(t *testing.T) {
	path := writeCSV(t, "housing.csv", housingCSV)
	s, err := LoadDataset(path, DatasetConfig{TestSize: 0.2, RandomState: 42})
	require.NoError(t, err)
	assert.Equal(t, []string{"sqft", "rooms"}, s.Features)
	assert.Len(t, s.TestX, 2)  // round(10 * 0.2)
	assert.Len(t, s.TrainX, 8)
	assert.Len(t, s.TestY, 2)
	assert.Len(t, s.TrainY, 8)
}

func TestLoadDataset_NamedTargetColumn(t *testing.T) {
	path := writeCSV(t, "housing.csv", housingCSV)
	s, err := LoadDataset(path, DatasetConfig{TargetColumn: "rooms", TestSize: 0.2, RandomState: 42})
	require.NoError(t, err)
	assert.Equal(t, []string{"sqft", "price"}, s.Features)
}

func TestLoadDataset_UnknownTargetColumn(t *testing.T) {
	path := writeCSV(t, "housing.csv", housingCSV)
	_, err := LoadDataset(path, DatasetConfig{TargetColumn: "bananas", TestSize: 0.2, RandomState: 42})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrDatasetNotFound)
}

func TestLoadDataset_DeterministicSplit(t *testing.T) {
	path := writeCSV(t, "housing.csv", housingCSV)
	cfg := DatasetConfig{TestSize: 0.2, RandomState: 42}

	a, err := LoadDataset(path, cfg)
	require.NoError(t, err)
	b, err := LoadDataset(path, cfg)
	require.NoError(t, err)

	assert.Equal(t, a.TestX, b.TestX)
	assert.Equal(t, a.TestY, b.TestY)
	assert.Equal(t, a.TrainX, b.TrainX)
	assert.Equal(t, a.TrainY, b.TrainY)
}

func TestLoadDataset_SplitPartitionsAllRows(t *testing.T) {
	path := writeCSV(t, "housing.csv", housingCSV)
	s, err := LoadDataset(path, DatasetConfig{TestSize: 0.3, RandomState: 7})
	require.NoError(t, err)

	seen := map[float64]int{}
	for _, y := range append(append([]float64{}, s.TrainY...), s.TestY...) {
		seen[y]++
	}
	// Every price from the file appears exactly once across both partitions.
	assert.Len(t, seen, 10)
}

func TestLoadDataset_TextLabelsGetClassCodes(t *testing.T) {
	path := writeCSV(t, "iris.csv", `petal,species
1.0,setosa
1.1,setosa
3.0,versicolor
3.2,versicolor
5.0,virginica
5.1,virginica
`)
	s, err := LoadDataset(path, DatasetConfig{TestSize: 0.2, RandomState: 42})
	require.NoError(t, err)

	for _, y := range append(append([]float64{}, s.TrainY...), s.TestY...) {
		assert.Contains(t, []float64{0, 1, 2}, y)
	}
}

func TestLoadDataset_NonNumericFeatureRejected(t *testing.T) {
	path := writeCSV(t, "bad.csv", "a,b\nx,1\n2,3\n4,5\n")
	_, err := LoadDataset(path, DatasetConfig{TestSize: 0.2, RandomState: 42})
	assert.Error(t, err)
}

func TestLoadDataset_RaggedRowRejected(t *testing.T) {
	path := writeCSV(t, "ragged.csv", "a,b\n1,2\n3\n5,6\n")
	_, err := LoadDataset(path, DatasetConfig{TestSize: 0.2, RandomState: 42})
	assert.Error(t, err)
}
