package predict

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default_model.yaml
var defaultModelYAML []byte

// Model is the scoring collaborator behind the Adapter.
type Model interface {
	Load(ctx context.Context) error
	Loaded() bool
	Predict(f Features) (float64, error)
}

// ProbabilityModel is a Model that also exposes class probabilities. The
// Adapter uses their maximum as the prediction confidence.
type ProbabilityModel interface {
	Model
	PredictProba(f Features) ([]float64, error)
}

// Coefficients parameterize a LinearModel.
type Coefficients struct {
	Version     string                        `yaml:"version,omitempty"`
	Intercept   float64                       `yaml:"intercept"`
	Clamp       Clamp                         `yaml:"clamp"`
	Numeric     map[string]float64            `yaml:"numeric"`
	Categorical map[string]map[string]float64 `yaml:"categorical"`
}

// Clamp bounds the model output.
type Clamp struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (c *Coefficients) validate() error {
	if c.Clamp.Max <= c.Clamp.Min {
		return fmt.Errorf("clamp range [%g,%g] is empty", c.Clamp.Min, c.Clamp.Max)
	}
	for name := range c.Numeric {
		if !IsNumeric(name) {
			return fmt.Errorf("numeric weight for unknown feature %q", name)
		}
	}
	for name := range c.Categorical {
		if !known(name) || IsNumeric(name) {
			return fmt.Errorf("categorical offsets for unknown feature %q", name)
		}
	}
	return nil
}

func known(name string) bool {
	for _, n := range FeatureNames {
		if n == name {
			return true
		}
	}
	return false
}

// LinearModel scores a student as an intercept plus weighted numeric features
// plus per-category offsets, clamped to the exam score range. Unseen
// categories contribute nothing.
type LinearModel struct {
	path string

	mu     sync.RWMutex
	coeffs *Coefficients
}

// NewLinearModel returns an unloaded model reading coefficients from path.
// An empty path selects the built-in coefficients.
func NewLinearModel(path string) *LinearModel {
	return &LinearModel{path: path}
}

// NewLinearModelFrom returns a model already loaded with coeffs.
func NewLinearModelFrom(coeffs Coefficients) (*LinearModel, error) {
	if err := coeffs.validate(); err != nil {
		return nil, err
	}
	return &LinearModel{coeffs: &coeffs}, nil
}

// Load reads and validates the coefficients file.
func (m *LinearModel) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := defaultModelYAML
	if m.path != "" {
		var err error
		data, err = os.ReadFile(m.path)
		if err != nil {
			return fmt.Errorf("reading model: %w", err)
		}
	}
	var c Coefficients
	if err := yaml.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parsing model: %w", err)
	}
	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid model %s: %w", m.source(), err)
	}

	m.mu.Lock()
	m.coeffs = &c
	m.mu.Unlock()
	return nil
}

func (m *LinearModel) source() string {
	if m.path == "" {
		return "(built-in)"
	}
	return m.path
}

// Loaded reports whether Load has succeeded.
func (m *LinearModel) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coeffs != nil
}

// Version returns the version recorded in the coefficients file, if any.
func (m *LinearModel) Version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.coeffs == nil {
		return ""
	}
	return m.coeffs.Version
}

// Predict scores f.
func (m *LinearModel) Predict(f Features) (float64, error) {
	m.mu.RLock()
	c := m.coeffs
	m.mu.RUnlock()
	if c == nil {
		return 0, ErrModelNotLoaded
	}
	if err := f.Validate(); err != nil {
		return 0, err
	}

	score := c.Intercept
	for _, name := range FeatureNames {
		if w, ok := c.Numeric[name]; ok {
			score += w * f.Number(name)
			continue
		}
		if offsets, ok := c.Categorical[name]; ok {
			score += offsets[f.Category(name)]
		}
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("model produced non-finite score")
	}
	return math.Max(c.Clamp.Min, math.Min(c.Clamp.Max, score)), nil
}
