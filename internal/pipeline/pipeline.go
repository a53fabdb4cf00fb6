// Package pipeline runs the load: transform the dataset, write it to every
// configured sink, verify the primary store, and score students.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/scorecast/scorecast/internal/dataset"
	"github.com/scorecast/scorecast/internal/loader"
	"github.com/scorecast/scorecast/internal/predict"
	"github.com/scorecast/scorecast/internal/report"
	"github.com/scorecast/scorecast/internal/schema"
	"github.com/scorecast/scorecast/internal/transform"
	"github.com/scorecast/scorecast/internal/verify"
)

// Source returns joined student records for prediction.
type Source interface {
	CompleteStudents(ctx context.Context, limit int) ([]schema.CompleteStudent, error)
}

// Pipeline holds the collaborators of one run. Sinks are loaded one after
// another and independently: a failing sink never undoes another's writes,
// so the stores are only eventually consistent with each other.
type Pipeline struct {
	Sinks []loader.Sink
	// Primary names the sink whose student count is handed to the verifier.
	// Empty means the first sink.
	Primary   string
	Inspector verify.Inspector

	Adapter        *predict.Adapter
	Source         Source
	PredictionSink loader.Sink

	BatchSize     int
	MaxErrors     int
	Metrics       *loader.Metrics
	VerifyOptions verify.Options
	Logger        *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) loader(sink loader.Sink) *loader.Loader {
	return loader.New(sink, loader.Options{BatchSize: p.BatchSize, Logger: p.logger(), Metrics: p.Metrics})
}

// Run transforms rows and loads them. A malformed row fails the run before
// anything is written. Sink and verification failures are recorded in the
// report, which is always returned once transformation succeeds. A run whose
// context ends before verification is marked failed and left unverified.
func (p *Pipeline) Run(ctx context.Context, runID string, rows []dataset.Row) (*report.RunReport, error) {
	if len(p.Sinks) == 0 {
		return nil, errors.New("no sinks configured")
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	log := p.logger().With("run_id", runID)

	entities, err := transform.Transform(rows)
	if err != nil {
		return nil, fmt.Errorf("transforming dataset: %w", err)
	}
	log.Info("dataset transformed", "rows", entities.Len())

	rep := report.New(runID, entities.Len())
	for _, sink := range p.Sinks {
		lr, err := p.loader(sink).LoadAll(ctx, entities.Students, entities.Academic, entities.Environmental)
		if lr != nil {
			lr.RunID = runID
			rep.Load[sink.Name()] = lr
		}
		if err != nil {
			rep.SinkErrors[sink.Name()] = err.Error()
			log.Error("sink load failed", "sink", sink.Name(), "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		rep.Interrupted = true
		if p.Inspector != nil {
			rep.VerifyError = "verification skipped: " + err.Error()
		}
		log.Warn("run interrupted", "error", err)
	} else if p.Inspector != nil {
		var expected *int64
		if lr := rep.Load[p.primary()]; lr != nil {
			n := int64(lr.StudentsInserted)
			expected = &n
		}
		opts := p.VerifyOptions
		if opts.Logger == nil {
			opts.Logger = p.logger()
		}
		vr, err := verify.New(p.Inspector, opts).Verify(ctx, expected)
		if err != nil {
			rep.VerifyError = err.Error()
			log.Error("verification failed", "error", err)
		} else {
			rep.Verification = vr
		}
	}

	rep.Finish(p.MaxErrors)
	log.Info("run finished", "status", rep.Status)
	return rep, nil
}

func (p *Pipeline) primary() string {
	if p.Primary != "" {
		return p.Primary
	}
	return p.Sinks[0].Name()
}

// Predict scores up to limit stored students (0 means all) and appends the
// predictions to PredictionSink when one is set.
func (p *Pipeline) Predict(ctx context.Context, limit int) (*report.PredictionSummary, error) {
	if p.Adapter == nil || p.Source == nil {
		return nil, errors.New("prediction is not configured")
	}

	recs, err := p.Source.CompleteStudents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("reading students: %w", err)
	}

	preds, failures := p.Adapter.PredictAll(ctx, recs)
	summary := &report.PredictionSummary{
		ModelVersion: p.Adapter.Version(),
		Students:     len(recs),
		Scored:       len(preds),
		Failures:     failures,
	}
	if p.PredictionSink == nil || len(preds) == 0 {
		return summary, nil
	}

	lr, err := p.loader(p.PredictionSink).LoadPredictions(ctx, preds)
	summary.Load = lr
	if lr != nil {
		summary.Stored = lr.PredictionsInserted
	}
	if err != nil {
		return summary, fmt.Errorf("storing predictions: %w", err)
	}
	return summary, nil
}
