// Package predict maps joined student records onto model features and turns
// model output into Prediction records.
package predict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scorecast/scorecast/internal/schema"
)

// Defaults used when Options leaves them unset.
const (
	DefaultModelVersion       = "v1.0"
	DefaultFallbackConfidence = 0.85
)

// ErrModelNotLoaded matches any ModelNotLoadedError.
var ErrModelNotLoaded = errors.New("model not loaded")

// ModelNotLoadedError is returned when predicting before the model loaded.
type ModelNotLoadedError struct {
	Version string
}

func (e *ModelNotLoadedError) Error() string {
	return fmt.Sprintf("model %s not loaded", e.Version)
}

func (e *ModelNotLoadedError) Is(target error) bool { return target == ErrModelNotLoaded }

// Result is one scored student.
type Result struct {
	PredictedScore float64 `json:"predicted_score"`
	Confidence     float64 `json:"confidence"`
}

// Failure is a student whose prediction could not be produced.
type Failure struct {
	StudentID int64 `json:"student_id"`
	Err       error `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("student %d: %v", f.StudentID, f.Err)
}

// MarshalJSON keeps the error message in serialized reports.
func (f Failure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return fmt.Appendf(nil, `{"student_id":%d,"error":%q}`, f.StudentID, msg), nil
}

// Options configures an Adapter.
type Options struct {
	ModelVersion       string
	FallbackConfidence float64
	Registerer         prometheus.Registerer // nil disables metrics
	Logger             *slog.Logger
	Now                func() time.Time
}

// Adapter scores students with a Model.
type Adapter struct {
	model    Model
	version  string
	fallback float64
	total    *prometheus.CounterVec
	logger   *slog.Logger
	now      func() time.Time
}

// NewAdapter wraps model.
func NewAdapter(model Model, opts Options) *Adapter {
	if opts.ModelVersion == "" {
		opts.ModelVersion = DefaultModelVersion
	}
	if opts.FallbackConfidence <= 0 || opts.FallbackConfidence > 1 {
		opts.FallbackConfidence = DefaultFallbackConfidence
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	a := &Adapter{
		model:    model,
		version:  opts.ModelVersion,
		fallback: opts.FallbackConfidence,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if opts.Registerer != nil {
		a.total = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scorecast",
			Name:      "predictions_total",
			Help:      "Prediction attempts by outcome.",
		}, []string{"outcome"})
		opts.Registerer.MustRegister(a.total)
	}
	return a
}

// Version returns the model version stamped on predictions.
func (a *Adapter) Version() string { return a.version }

// PredictFor scores one joined student record.
func (a *Adapter) PredictFor(rec schema.CompleteStudent) (Result, error) {
	res, err := a.predict(rec)
	a.count(err)
	return res, err
}

func (a *Adapter) predict(rec schema.CompleteStudent) (Result, error) {
	if a.model == nil || !a.model.Loaded() {
		return Result{}, &ModelNotLoadedError{Version: a.version}
	}
	f := BuildFeatures(rec)
	score, err := a.model.Predict(f)
	if err != nil {
		return Result{}, fmt.Errorf("predicting: %w", err)
	}

	confidence := a.fallback
	if pm, ok := a.model.(ProbabilityModel); ok {
		probs, err := pm.PredictProba(f)
		if err != nil {
			a.logger.Debug("class probabilities unavailable", "student_id", rec.ID, "error", err)
		} else if len(probs) > 0 {
			confidence = maxOf(probs)
		}
	}
	return Result{PredictedScore: score, Confidence: confidence}, nil
}

// PredictAll scores every record and builds the Prediction rows to persist.
// A failing student is recorded and skipped. Cancellation stops the run and
// is reported as a failure of the student that was next.
func (a *Adapter) PredictAll(ctx context.Context, recs []schema.CompleteStudent) ([]schema.Prediction, []Failure) {
	var preds []schema.Prediction
	var failures []Failure
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			failures = append(failures, Failure{StudentID: rec.ID, Err: err})
			break
		}
		res, err := a.PredictFor(rec)
		if err == nil {
			var p schema.Prediction
			p, err = schema.NewPrediction(rec.ID, res.PredictedScore, res.Confidence, actualScore(rec), a.version, a.now())
			if err == nil {
				preds = append(preds, p)
				continue
			}
		}
		a.logger.Warn("prediction failed", "student_id", rec.ID, "error", err)
		failures = append(failures, Failure{StudentID: rec.ID, Err: err})
	}
	a.logger.Info("predictions complete", "scored", len(preds), "failed", len(failures))
	return preds, failures
}

func (a *Adapter) count(err error) {
	if a.total == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	a.total.WithLabelValues(outcome).Inc()
}

func actualScore(rec schema.CompleteStudent) *int {
	if rec.Academic == nil || rec.Academic.ExamScore == nil {
		return nil
	}
	v := *rec.Academic.ExamScore
	return &v
}

func maxOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
