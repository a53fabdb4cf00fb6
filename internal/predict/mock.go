package predict

import (
	"context"
	"errors"
)

// MockModel is a test double for Model. Score computes the prediction from
// the features; Proba, when set, makes it a ProbabilityModel.
type MockModel struct {
	Ready   bool
	LoadErr error
	Score   func(f Features) float64
	FailFor map[float64]error // keyed by Hours_Studied

	Calls []Features
}

func (m *MockModel) Load(_ context.Context) error {
	if m.LoadErr != nil {
		return m.LoadErr
	}
	m.Ready = true
	return nil
}

func (m *MockModel) Loaded() bool { return m.Ready }

func (m *MockModel) Predict(f Features) (float64, error) {
	m.Calls = append(m.Calls, f)
	if !m.Ready {
		return 0, errors.New("mock model not loaded")
	}
	if err := m.FailFor[f.Number("Hours_Studied")]; err != nil {
		return 0, err
	}
	if m.Score == nil {
		return 50, nil
	}
	return m.Score(f), nil
}

// MockProbabilityModel adds class probabilities to MockModel.
type MockProbabilityModel struct {
	MockModel
	Proba    []float64
	ProbaErr error
}

func (m *MockProbabilityModel) PredictProba(_ Features) ([]float64, error) {
	return m.Proba, m.ProbaErr
}
