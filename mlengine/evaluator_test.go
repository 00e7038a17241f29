package mlengine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

// exactHousing follows price = 2*sqft + 3*rooms + 1 exactly, so the matching
// linear model scores r2 = 1 on any split.
const exactHousing = `sqft,rooms,price
100,1,204
150,2,307
200,2,407
250,3,510
120,1,244
180,2,367
300,4,613
90,1,184
210,3,430
160,2,327
`

func setupEvaluator(t *testing.T) (*Evaluator, string) {
	t.Helper()
	dir := t.TempDir()
	datasets := filepath.Join(dir, "datasets")
	require.NoError(t, os.MkdirAll(datasets, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(datasets, "housing_train.csv"), []byte(exactHousing), 0o644))

	data, err := json.Marshal(&ModelDoc{
		Format:    ModelFormat,
		Kind:      KindLinear,
		Weights:   []float64{2, 3},
		Intercept: 1,
	})
	require.NoError(t, err)
	modelPath := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(modelPath, data, 0o644))

	return NewEvaluator(datasets, nopLogger()), modelPath
}

func TestRun_Success(t *testing.T) {
	e, modelPath := setupEvaluator(t)

	res := e.Run(modelPath, "housing_train.csv", MetricR2Score,
		[]byte(`{"target_column":"price","test_size":0.2,"random_state":42}`))

	assert.True(t, res.Success)
	assert.InDelta(t, 1.0, res.Score, 1e-9)
	assert.Contains(t, res.Logs, "Metric: r2_score")
	assert.Contains(t, res.Logs, "rmse")
}

func TestRun_DatasetMissing(t *testing.T) {
	e, modelPath := setupEvaluator(t)

	res := e.Run(modelPath, "nope.csv", MetricR2Score, nil)
	assert.False(t, res.Success)
	assert.Equal(t, 0.0, res.Score)
	assert.Contains(t, res.Logs, "Evaluation failed")
}

func TestRun_ModelUnloadable(t *testing.T) {
	e, _ := setupEvaluator(t)
	badModel := filepath.Join(t.TempDir(), "bad.bin")
	require.NoError(t, os.WriteFile(badModel, []byte("garbage"), 0o644))

	res := e.Run(badModel, "housing_train.csv", MetricR2Score, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Logs, "model load failure")
}

func TestRun_UnsupportedMetric(t *testing.T) {
	e, modelPath := setupEvaluator(t)

	res := e.Run(modelPath, "housing_train.csv", "log_loss", nil)
	assert.False(t, res.Success)
	assert.Equal(t, 0.0, res.Score)
	assert.Contains(t, res.Logs, "unsupported metric")
}

func TestRun_DimensionMismatchAbsorbed(t *testing.T) {
	e, _ := setupEvaluator(t)

	data, err := json.Marshal(&ModelDoc{Format: ModelFormat, Kind: KindLinear, Weights: []float64{1, 2, 3, 4}})
	require.NoError(t, err)
	wide := filepath.Join(t.TempDir(), "wide.json")
	require.NoError(t, os.WriteFile(wide, data, 0o644))

	res := e.Run(wide, "housing_train.csv", MetricR2Score, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Logs, "Evaluation failed")
}

func TestRun_BadConfigAbsorbed(t *testing.T) {
	e, modelPath := setupEvaluator(t)

	res := e.Run(modelPath, "housing_train.csv", MetricR2Score, []byte(`{broken`))
	assert.False(t, res.Success)
}
