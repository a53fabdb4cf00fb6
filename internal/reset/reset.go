// Package reset clears the stores so the pipeline can be run again from a
// known empty state.
package reset

import (
	"context"
	"fmt"

	"github.com/scorecast/scorecast/internal/docstore"
	"github.com/scorecast/scorecast/internal/indexes"
	"github.com/scorecast/scorecast/internal/schema"
)

// Relational is the relational store surface reset needs.
type Relational interface {
	DropSchema(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
}

// Document is the document store surface reset needs.
type Document interface {
	DropCollections(ctx context.Context, names []string) error
	EnsureCollections(ctx context.Context) error
	CreateIndexes(ctx context.Context, indexes []docstore.CollectionIndex) error
}

// ArchivePurger removes archived reports of a run.
type ArchivePurger interface {
	Delete(ctx context.Context, runID string) error
}

// Targets are the stores to reset. Nil targets are skipped.
type Targets struct {
	Relational Relational
	Document   Document
	Archive    ArchivePurger
}

// Options controls what gets reset.
type Options struct {
	SkipRelational bool
	SkipDocument   bool
	// DropOnly leaves the stores empty without recreating them.
	DropOnly bool
	// Indexes overrides the plan derived from the schema.
	Indexes *indexes.IndexPlan
	// PurgeRunID removes that run's archived reports when set.
	PurgeRunID string
}

// Result holds the outcome of a reset.
type Result struct {
	RelationalDropped   bool     `yaml:"relational_dropped" json:"relational_dropped"`
	RelationalRecreated bool     `yaml:"relational_recreated" json:"relational_recreated"`
	DroppedCollections  []string `yaml:"dropped_collections,omitempty" json:"dropped_collections,omitempty"`
	CollectionsCreated  bool     `yaml:"collections_created" json:"collections_created"`
	IndexesBuilt        int      `yaml:"indexes_built" json:"indexes_built"`
	ArchivePurged       bool     `yaml:"archive_purged" json:"archive_purged"`
	Errors              []string `yaml:"errors,omitempty" json:"errors,omitempty"`
}

// OK reports whether every step succeeded.
func (r *Result) OK() bool { return len(r.Errors) == 0 }

// Execute performs the reset. Each step continues even if a prior step fails.
func Execute(ctx context.Context, targets Targets, opts Options) *Result {
	result := &Result{}

	// Step 1: relational tables
	if !opts.SkipRelational && targets.Relational != nil {
		if err := targets.Relational.DropSchema(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("dropping relational schema: %v", err))
		} else {
			result.RelationalDropped = true
			if !opts.DropOnly {
				if err := targets.Relational.EnsureSchema(ctx); err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("recreating relational schema: %v", err))
				} else {
					result.RelationalRecreated = true
				}
			}
		}
	}

	// Step 2: document collections and their indexes
	if !opts.SkipDocument && targets.Document != nil {
		names := schema.Normalized().TableNames()
		if err := targets.Document.DropCollections(ctx, names); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("dropping collections: %v", err))
		} else {
			result.DroppedCollections = names
			if !opts.DropOnly {
				rebuildDocument(ctx, targets.Document, opts.Indexes, result)
			}
		}
	}

	// Step 3: archived reports
	if opts.PurgeRunID != "" && targets.Archive != nil {
		if err := targets.Archive.Delete(ctx, opts.PurgeRunID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("removing archived reports: %v", err))
		} else {
			result.ArchivePurged = true
		}
	}

	return result
}

func rebuildDocument(ctx context.Context, doc Document, plan *indexes.IndexPlan, result *Result) {
	if err := doc.EnsureCollections(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("recreating collections: %v", err))
		return
	}
	result.CollectionsCreated = true

	if plan == nil {
		plan = indexes.Plan(schema.Normalized())
	}
	if err := doc.CreateIndexes(ctx, plan.Indexes); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("building indexes: %v", err))
		return
	}
	result.IndexesBuilt = len(plan.Indexes)
}
