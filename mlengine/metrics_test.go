package mlengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateMetric_Accuracy(t *testing.T) {
	score, err := EvaluateMetric(MetricAccuracy, []float64{0, 0, 1, 1}, []float64{0, 1, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, score, 1e-9)
}

func TestEvaluateMetric_MSE(t *testing.T) {
	score, err := EvaluateMetric(MetricMSE, []float64{1, 2, 3, 4}, []float64{1.1, 1.9, 3.2, 3.8})
	require.NoError(t, err)
	assert.InDelta(t, 0.025, score, 1e-9)
}

func TestEvaluateMetric_R2(t *testing.T) {
	score, err := EvaluateMetric(MetricR2Score, []float64{1, 2, 3, 4}, []float64{1.1, 1.9, 3.2, 3.8})
	require.NoError(t, err)
	assert.InDelta(t, 0.98, score, 1e-9)
}

func TestEvaluateMetric_R2_PerfectFit(t *testing.T) {
	score, err := EvaluateMetric(MetricR2Score, []float64{1, 2, 3}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestEvaluateMetric_WeightedPRF(t *testing.T) {
	yTrue := []float64{0, 0, 1, 1}
	yPred := []float64{0, 1, 1, 1}

	// class 0: p=1, r=0.5; class 1: p=2/3, r=1; supports equal.
	p, err := EvaluateMetric(MetricPrecision, yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/6.0, p, 1e-9)

	r, err := EvaluateMetric(MetricRecall, yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, r, 1e-9)

	f1, err := EvaluateMetric(MetricF1Score, yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, (2.0/3.0+0.8)/2.0, f1, 1e-9)
}

func TestEvaluateMetric_Unsupported(t *testing.T) {
	_, err := EvaluateMetric("log_loss", []float64{1}, []float64{1})
	assert.ErrorIs(t, err, ErrUnsupportedMetric)
}

func TestEvaluateMetric_LengthMismatch(t *testing.T) {
	_, err := EvaluateMetric(MetricAccuracy, []float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestEvaluateMetric_Empty(t *testing.T) {
	_, err := EvaluateMetric(MetricAccuracy, nil, nil)
	assert.Error(t, err)
}

func TestDiagnosticMetrics_Classification(t *testing.T) {
	diag := DiagnosticMetrics(MetricAccuracy, []float64{0, 1}, []float64{0, 1})
	assert.Contains(t, diag, MetricAccuracy)
	assert.Contains(t, diag, MetricF1Score)
	assert.NotContains(t, diag, MetricR2Score)
}

func TestDiagnosticMetrics_Regression(t *testing.T) {
	diag := DiagnosticMetrics(MetricR2Score, []float64{1, 2}, []float64{1, 2})
	assert.Contains(t, diag, MetricR2Score)
	assert.Contains(t, diag, MetricMSE)
	assert.Contains(t, diag, "rmse")
	assert.Equal(t, 1.0, diag[MetricR2Score])
}

func TestDiagnosticMetrics_NeverFails(t *testing.T) {
	assert.Empty(t, DiagnosticMetrics(MetricAccuracy, nil, nil))
	assert.Empty(t, DiagnosticMetrics(MetricAccuracy, []float64{1}, []float64{1, 2}))
}
