// Package mlengine scores serialized predictive models against held-out
// dataset splits. It knows nothing about users or quests: given a model
// artifact, a dataset name, a metric and a config, it produces a score.
package mlengine

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Result is the outcome of one evaluation run. Success is false for every
// evaluation-time fault (missing dataset, unloadable model, prediction
// error, unsupported metric); the fault is described in Logs so the caller
// can still record the attempt.
type Result struct {
	Score   float64
	Success bool
	Logs    string
}

// Evaluator runs the full load-predict-score pipeline.
type Evaluator struct {
	datasetsPath string
	logger       *zap.Logger
}

// NewEvaluator creates an Evaluator rooted at the given datasets directory.
func NewEvaluator(datasetsPath string, logger *zap.Logger) *Evaluator {
	return &Evaluator{datasetsPath: datasetsPath, logger: logger}
}

// Run evaluates the model at modelPath against the named dataset. Faults
// are absorbed into a failed Result rather than propagated: the submission
// workflow must be able to record a submission even when evaluation fails
// outright.
func (e *Evaluator) Run(modelPath, datasetName, metricName string, configRaw []byte) Result {
	score, logs, err := e.run(modelPath, datasetName, metricName, configRaw)
	if err != nil {
		e.logger.Warn("evaluation failed",
			zap.String("model", modelPath),
			zap.String("dataset", datasetName),
			zap.String("metric", metricName),
			zap.Error(err),
		)
		return Result{Score: 0, Success: false, Logs: "Evaluation failed: " + err.Error()}
	}
	return Result{Score: score, Success: true, Logs: logs}
}

func (e *Evaluator) run(modelPath, datasetName, metricName string, configRaw []byte) (float64, string, error) {
	cfg, err := ParseDatasetConfig(configRaw)
	if err != nil {
		return 0, "", err
	}

	model, err := LoadModel(modelPath)
	if err != nil {
		return 0, "", err
	}

	split, err := LoadDataset(filepath.Join(e.datasetsPath, datasetName), cfg)
	if err != nil {
		return 0, "", err
	}

	yPred, err := model.Predict(split.TestX)
	if err != nil {
		return 0, "", err
	}

	score, err := EvaluateMetric(metricName, split.TestY, yPred)
	if err != nil {
		return 0, "", err
	}

	diag := DiagnosticMetrics(metricName, split.TestY, yPred)
	logs := fmt.Sprintf("Metric: %s\nScore: %.4f\nTest rows: %d\nAdditional metrics: %s",
		metricName, score, len(split.TestY), formatDiagnostics(diag))

	e.logger.Info("evaluation complete",
		zap.String("dataset", datasetName),
		zap.String("metric", metricName),
		zap.Float64("score", score),
		zap.Int("test_rows", len(split.TestY)),
	)
	return score, logs, nil
}

func formatDiagnostics(diag map[string]float64) string {
	if len(diag) == 0 {
		return "none"
	}
	names := make([]string, 0, len(diag))
	for name := range diag {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%.4f", name, diag[name])
	}
	return strings.Join(parts, " ")
}
