// Package archive uploads run reports to S3 so they outlive the local
// workstation.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/scorecast/scorecast/internal/report"
)

var ErrNoBucket = errors.New("archive bucket is not configured")

// Archiver stores reports under s3://<bucket>/<prefix>/<run id>/.
type Archiver struct {
	client Client
	bucket string
	prefix string
}

// UploadResult holds the S3 URIs of an uploaded report.
type UploadResult struct {
	JSONURI string `json:"json_uri"`
	TextURI string `json:"text_uri"`
}

func New(client Client, bucket, prefix string) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (a *Archiver) runPrefix(runID string) string {
	return path.Join(a.prefix, runID) + "/"
}

func (a *Archiver) uri(key string) string {
	return fmt.Sprintf("s3://%s/%s", a.bucket, key)
}

// Upload writes the JSON and text renderings of r.
func (a *Archiver) Upload(ctx context.Context, r *report.RunReport) (*UploadResult, error) {
	if a.bucket == "" {
		return nil, ErrNoBucket
	}
	if r.RunID == "" {
		return nil, errors.New("report has no run id")
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}

	result := &UploadResult{}
	jsonKey := a.runPrefix(r.RunID) + "report.json"
	if err := a.client.Put(ctx, a.bucket, jsonKey, "application/json", data); err != nil {
		return nil, fmt.Errorf("uploading report: %w", err)
	}
	result.JSONURI = a.uri(jsonKey)

	textKey := a.runPrefix(r.RunID) + "report.txt"
	if err := a.client.Put(ctx, a.bucket, textKey, "text/plain; charset=utf-8", []byte(report.FormatText(r))); err != nil {
		return nil, fmt.Errorf("uploading text report: %w", err)
	}
	result.TextURI = a.uri(textKey)

	return result, nil
}

// Runs lists the run ids that have archived reports, sorted.
func (a *Archiver) Runs(ctx context.Context) ([]string, error) {
	if a.bucket == "" {
		return nil, ErrNoBucket
	}
	base := ""
	if a.prefix != "" {
		base = a.prefix + "/"
	}
	keys, err := a.client.List(ctx, a.bucket, base)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var runs []string
	for _, key := range keys {
		rest := strings.TrimPrefix(key, base)
		runID, _, ok := strings.Cut(rest, "/")
		if !ok || runID == "" || seen[runID] {
			continue
		}
		seen[runID] = true
		runs = append(runs, runID)
	}
	sort.Strings(runs)
	return runs, nil
}

// Delete removes the archived reports of one run.
func (a *Archiver) Delete(ctx context.Context, runID string) error {
	if a.bucket == "" {
		return ErrNoBucket
	}
	if runID == "" {
		return errors.New("run id is required")
	}
	return a.client.DeletePrefix(ctx, a.bucket, a.runPrefix(runID))
}

// ParseURI splits "s3://bucket/prefix" into bucket and prefix.
func ParseURI(uri string) (string, string) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", ""
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	return bucket, prefix
}
