package migration

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/memberbridge/memberbridge/internal/errors"
)

// Failure describes one member that could not be loaded.
type Failure struct {
	ExternalID int64  `json:"external_id" yaml:"external_id"`
	Email      string `json:"email" yaml:"email"`
	Stage      Stage  `json:"stage" yaml:"stage"`
	Error      string `json:"error" yaml:"error"`
}

// AssetFailure describes one asset slot left empty.
type AssetFailure struct {
	ExternalID int64  `json:"external_id" yaml:"external_id"`
	AssetType  string `json:"asset_type" yaml:"asset_type"`
	Source     string `json:"source" yaml:"source"`
	Reason     string `json:"reason" yaml:"reason"`
}

// Warning is a non-fatal observation about a member.
type Warning struct {
	ExternalID int64  `json:"external_id" yaml:"external_id"`
	Message    string `json:"message" yaml:"message"`
}

// Report summarizes one run. It is sealed by Finish and not modified afterwards.
type Report struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Stage       Stage     `json:"stage" yaml:"stage"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	Duration    string    `json:"duration" yaml:"duration"`
	Interrupted bool      `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`

	Attempted int `json:"attempted" yaml:"attempted"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Duplicate int `json:"duplicate" yaml:"duplicate"`
	Failed    int `json:"failed" yaml:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped"`

	AssetsUploaded int `json:"assets_uploaded" yaml:"assets_uploaded"`
	AssetsReused   int `json:"assets_reused" yaml:"assets_reused"`

	Failures      []Failure      `json:"failures" yaml:"failures"`
	AssetFailures []AssetFailure `json:"asset_failures" yaml:"asset_failures"`
	Warnings      []Warning      `json:"warnings" yaml:"warnings"`

	sealed bool
}

// NewReport starts a report for stage.
func NewReport(stage Stage) *Report {
	return &Report{
		RunID:         uuid.NewString(),
		Stage:         stage,
		StartedAt:     time.Now().UTC(),
		Failures:      []Failure{},
		AssetFailures: []AssetFailure{},
		Warnings:      []Warning{},
	}
}

func (r *Report) attempt() {
	if !r.sealed {
		r.Attempted++
	}
}

func (r *Report) succeed() {
	if !r.sealed {
		r.Succeeded++
	}
}

func (r *Report) duplicate() {
	if !r.sealed {
		r.Duplicate++
	}
}

func (r *Report) skip(id int64, reason string) {
	if r.sealed {
		return
	}
	r.Skipped++
	r.Warnings = append(r.Warnings, Warning{ExternalID: id, Message: "skipped: " + reason})
}

func (r *Report) fail(it *Item, stage Stage, err error) {
	if r.sealed {
		return
	}
	r.Failed++
	r.Failures = append(r.Failures, Failure{
		ExternalID: it.ExternalID,
		Email:      it.email(),
		Stage:      stage,
		Error:      errors.ScrubMessage(err.Error()),
	})
}

func (r *Report) assetFailure(id int64, assetType, source string, err error) {
	if r.sealed {
		return
	}
	r.AssetFailures = append(r.AssetFailures, AssetFailure{
		ExternalID: id,
		AssetType:  assetType,
		Source:     errors.ScrubMessage(source),
		Reason:     errors.ScrubMessage(err.Error()),
	})
}

func (r *Report) warn(id int64, msg string) {
	if !r.sealed {
		r.Warnings = append(r.Warnings, Warning{ExternalID: id, Message: msg})
	}
}

// Finish stamps the end time and seals the report.
func (r *Report) Finish() {
	if r.sealed {
		return
	}
	r.FinishedAt = time.Now().UTC()
	r.Duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
	r.sealed = true
}

// Sealed reports whether Finish has been called.
func (r *Report) Sealed() bool { return r.sealed }

// Write stores the report as <dir>/<stage>-report.<format>, replacing any
// previous report of the same stage. Format is "json" or "yaml".
func (r *Report) Write(dir, format string) (string, error) {
	format = strings.ToLower(format)
	var (
		data []byte
		err  error
		ext  string
	)
	switch format {
	case "yaml", "yml":
		data, err = yaml.Marshal(r)
		ext = "yaml"
	case "json", "":
		data, err = json.MarshalIndent(r, "", "  ")
		ext = "json"
	default:
		return "", errors.New(fmt.Errorf("unsupported report format %q", format)).
			Component("migration").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return "", stagingError(err, "marshal_report", dir)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-report.%s", r.Stage, ext))
	if err := writeFileAtomic(path, data); err != nil {
		return "", stagingError(err, "write_report", path)
	}
	return path, nil
}
