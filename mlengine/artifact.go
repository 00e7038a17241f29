package mlengine

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
)

// ErrModelLoadFailure is returned when no format handler accepts the artifact.
var ErrModelLoadFailure = errors.New("mlengine: model load failure")

// ModelFormat is the format tag every valid artifact must carry.
const ModelFormat = "modelquest/model.v1"

// Predictor kinds understood by the engine.
const (
	KindLinear   = "linear"
	KindLogistic = "logistic"
)

// Predictor is anything that can map feature rows to predicted labels.
type Predictor interface {
	Predict(features [][]float64) ([]float64, error)
}

// ModelDoc is the serialized form of a submitted model. The same document
// is accepted in two encodings, JSON and gob, tried in that order.
type ModelDoc struct {
	Format    string    `json:"format"`
	Kind      string    `json:"kind"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// validate checks document structure, not just decodability: a payload that
// happens to decode but lacks the format tag or a known kind is rejected so
// the next format handler gets its turn.
func (d *ModelDoc) validate() error {
	if d.Format != ModelFormat {
		return fmt.Errorf("unknown format tag %q", d.Format)
	}
	switch d.Kind {
	case KindLinear, KindLogistic:
	default:
		return fmt.Errorf("unknown model kind %q", d.Kind)
	}
	if len(d.Weights) == 0 {
		return errors.New("model has no weights")
	}
	return nil
}

func (d *ModelDoc) predictor() Predictor {
	switch d.Kind {
	case KindLogistic:
		return &logisticModel{weights: d.Weights, intercept: d.Intercept}
	default:
		return &linearModel{weights: d.Weights, intercept: d.Intercept}
	}
}

// formatHandler decodes one artifact encoding.
type formatHandler struct {
	name   string
	decode func(data []byte) (*ModelDoc, error)
}

// formatHandlers is the fixed fallback order: JSON first, then gob.
var formatHandlers = []formatHandler{
	{name: "json", decode: decodeJSON},
	{name: "gob", decode: decodeGob},
}

func decodeJSON(data []byte) (*ModelDoc, error) {
	doc := &ModelDoc{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeGob(data []byte) (*ModelDoc, error) {
	doc := &ModelDoc{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, err
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// DecodeModel tries each format handler in order and returns the first
// predictor whose document validates. Exhaustion yields ErrModelLoadFailure
// carrying every handler's rejection reason.
func DecodeModel(data []byte) (Predictor, error) {
	var reasons []string
	for _, h := range formatHandlers {
		doc, err := h.decode(data)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", h.name, err))
			continue
		}
		return doc.predictor(), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrModelLoadFailure, reasons)
}

// LoadModel reads and decodes a model artifact from disk.
func LoadModel(path string) (Predictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelLoadFailure, path)
		}
		return nil, err
	}
	return DecodeModel(data)
}

// EncodeModelGob serializes a document in the gob encoding. Used by tests
// and the sample-model tooling; user uploads arrive pre-encoded.
func EncodeModelGob(doc *ModelDoc) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ---- predictors ----

type linearModel struct {
	weights   []float64
	intercept float64
}

func (m *linearModel) Predict(features [][]float64) ([]float64, error) {
	out := make([]float64, len(features))
	for i, row := range features {
		z, err := dot(m.weights, row, m.intercept)
		if err != nil {
			return nil, err
		}
		out[i] = z
	}
	return out, nil
}

type logisticModel struct {
	weights   []float64
	intercept float64
}

func (m *logisticModel) Predict(features [][]float64) ([]float64, error) {
	out := make([]float64, len(features))
	for i, row := range features {
		z, err := dot(m.weights, row, m.intercept)
		if err != nil {
			return nil, err
		}
		if 1/(1+math.Exp(-z)) >= 0.5 {
			out[i] = 1
		}
	}
	return out, nil
}

func dot(weights, row []float64, intercept float64) (float64, error) {
	if len(weights) != len(row) {
		return 0, fmt.Errorf("mlengine: model expects %d features, dataset has %d", len(weights), len(row))
	}
	z := intercept
	for j, w := range weights {
		z += w * row[j]
	}
	return z, nil
}
