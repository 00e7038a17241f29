package mlengine

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedMetric is returned for a metric name outside the closed set.
var ErrUnsupportedMetric = errors.New("mlengine: unsupported metric")

// Metric names form a closed set; the dispatch below is exhaustive and not
// extensible at runtime.
const (
	MetricAccuracy  = "accuracy"
	MetricR2Score   = "r2_score"
	MetricF1Score   = "f1_score"
	MetricMSE       = "mse"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
)

// classificationMetric reports whether a metric treats predictions as labels.
func classificationMetric(name string) bool {
	switch name {
	case MetricAccuracy, MetricF1Score, MetricPrecision, MetricRecall:
		return true
	default:
		return false
	}
}

// EvaluateMetric computes the named metric over true vs predicted labels.
func EvaluateMetric(name string, yTrue, yPred []float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("mlengine: %d true labels vs %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, errors.New("mlengine: empty evaluation set")
	}
	switch name {
	case MetricAccuracy:
		return accuracy(yTrue, yPred), nil
	case MetricR2Score:
		return r2Score(yTrue, yPred), nil
	case MetricF1Score:
		return weightedF1(yTrue, yPred), nil
	case MetricMSE:
		return mse(yTrue, yPred), nil
	case MetricPrecision:
		p, _, _ := weightedPRF(yTrue, yPred)
		return p, nil
	case MetricRecall:
		_, r, _ := weightedPRF(yTrue, yPred)
		return r, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMetric, name)
	}
}

// DiagnosticMetrics computes the secondary best-effort metric set used for
// logging. It never fails: an inapplicable metric is simply omitted.
func DiagnosticMetrics(primary string, yTrue, yPred []float64) map[string]float64 {
	out := map[string]float64{}
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return out
	}
	if classificationMetric(primary) {
		out[MetricAccuracy] = accuracy(yTrue, yPred)
		out[MetricF1Score] = weightedF1(yTrue, yPred)
		return out
	}
	m := mse(yTrue, yPred)
	out[MetricR2Score] = r2Score(yTrue, yPred)
	out[MetricMSE] = m
	out["rmse"] = math.Sqrt(m)
	return out
}

// sameLabel compares class labels with a small tolerance so that labels
// decoded from text compare reliably.
func sameLabel(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func accuracy(yTrue, yPred []float64) float64 {
	hits := 0
	for i := range yTrue {
		if sameLabel(yTrue[i], yPred[i]) {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

func mse(yTrue, yPred []float64) float64 {
	var sum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return sum / float64(len(yTrue))
}

// r2Score is the coefficient of determination. A constant true series with
// zero residual scores 1, otherwise 0, matching common library behavior.
func r2Score(yTrue, yPred []float64) float64 {
	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(len(yTrue))

	var ssRes, ssTot float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		ssRes += d * d
		t := yTrue[i] - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// weightedPRF computes precision, recall and F1 per class present in yTrue,
// averaged with each class weighted by its support.
func weightedPRF(yTrue, yPred []float64) (precision, recall, f1 float64) {
	classes := []float64{}
	support := map[float64]int{}
	for _, c := range yTrue {
		key := canonical(c, classes)
		if _, ok := support[key]; !ok {
			classes = append(classes, key)
		}
		support[key]++
	}

	total := float64(len(yTrue))
	for _, c := range classes {
		var tp, fp, fn float64
		for i := range yTrue {
			trueMatch := sameLabel(yTrue[i], c)
			predMatch := sameLabel(yPred[i], c)
			switch {
			case trueMatch && predMatch:
				tp++
			case !trueMatch && predMatch:
				fp++
			case trueMatch && !predMatch:
				fn++
			}
		}
		var p, r float64
		if tp+fp > 0 {
			p = tp / (tp + fp)
		}
		if tp+fn > 0 {
			r = tp / (tp + fn)
		}
		var f float64
		if p+r > 0 {
			f = 2 * p * r / (p + r)
		}
		w := float64(support[c]) / total
		precision += w * p
		recall += w * r
		f1 += w * f
	}
	return precision, recall, f1
}

func weightedF1(yTrue, yPred []float64) float64 {
	_, _, f1 := weightedPRF(yTrue, yPred)
	return f1
}

// canonical collapses labels that compare equal under sameLabel onto one
// representative so map lookups stay consistent.
func canonical(c float64, classes []float64) float64 {
	for _, existing := range classes {
		if sameLabel(existing, c) {
			return existing
		}
	}
	return c
}
