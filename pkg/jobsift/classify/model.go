package classify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jobsift/jobsift/pkg/jobsift/internalerr"
)

// Term is one vocabulary entry: its weight-vector index and the inverse
// document frequency frozen at training time.
type Term struct {
	Index int     `json:"index"`
	IDF   float64 `json:"idf"`
}

// Model is a serialized relevance model: a frozen TF-IDF vocabulary and
// the coefficients of a logistic-regression scorer. Immutable once
// loaded; constructed explicitly and passed in, never a singleton.
type Model struct {
	Version    int             `json:"version"`
	NGramMax   int             `json:"ngram_max"`
	Vocabulary map[string]Term `json:"vocabulary"`
	Weights    []float64       `json:"weights"`
	Bias       float64         `json:"bias"`
	Threshold  float64         `json:"threshold"`
}

// LoadModel reads a model artifact from disk. Any failure wraps
// internalerr.ErrModelLoad and is fatal to the pipeline run.
func LoadModel(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Model{}, fmt.Errorf("%w: read %s: %v", internalerr.ErrModelLoad, path, err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return Model{}, fmt.Errorf("%w: parse %s: %v", internalerr.ErrModelLoad, path, err)
	}

	if err := m.validate(); err != nil {
		return Model{}, fmt.Errorf("%w: %s: %v", internalerr.ErrModelLoad, path, err)
	}
	return m, nil
}

func (m Model) validate() error {
	if len(m.Vocabulary) == 0 {
		return fmt.Errorf("empty vocabulary")
	}
	if len(m.Weights) == 0 {
		return fmt.Errorf("empty weight vector")
	}
	if m.NGramMax < 1 || m.NGramMax > 3 {
		return fmt.Errorf("ngram_max %d out of range", m.NGramMax)
	}
	if m.Threshold < 0 || m.Threshold > 1 {
		return fmt.Errorf("threshold %f out of range", m.Threshold)
	}
	for term, t := range m.Vocabulary {
		if t.Index < 0 || t.Index >= len(m.Weights) {
			return fmt.Errorf("term %q index %d outside weight vector", term, t.Index)
		}
	}
	return nil
}
