// Package migration drives members from the legacy store to the destination:
// extraction, normalization, asset resolution, relocation and loading, one
// member at a time, with a run report at the end.
package migration

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/memberbridge/memberbridge/internal/datastore"
	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/member"
	"github.com/memberbridge/memberbridge/internal/relocator"
	"github.com/memberbridge/memberbridge/internal/resolver"
)

// Source reads legacy members. *legacy.Connector implements it.
type Source interface {
	FetchMembers(ctx context.Context, ids []int64) ([]member.LegacyRecord, error)
	FetchMetadata(ctx context.Context, ids []int64) (map[int64]map[string]string, error)
}

// Normalizer turns a legacy record into a typed one. *normalize.Normalizer implements it.
type Normalizer interface {
	Normalize(rec *member.LegacyRecord, meta map[string]string) *member.Record
}

// Resolver finds asset references. *resolver.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, externalID int64, meta map[string]string) resolver.Result
}

// Relocator copies one asset. *relocator.Relocator implements it.
type Relocator interface {
	Relocate(ctx context.Context, ref *member.AssetReference, externalID int64, assetType member.AssetType) (*member.UploadedAsset, error)
}

// Loader writes one member. *datastore.Loader implements it.
type Loader interface {
	Upsert(ctx context.Context, rec *member.Record, assets *member.RelocatedAssets) (*datastore.LoadResult, error)
}

// Deps are the collaborators of a Pipeline. Stages only touch the ones they need,
// so a relocate-only run can leave Source and Loader nil.
type Deps struct {
	Source     Source
	Normalizer Normalizer
	Resolver   Resolver
	Relocator  Relocator
	Loader     Loader
	Metrics    *Metrics
}

// Options tune a run.
type Options struct {
	// MemberDelay is the pause between two members in stages that do I/O per member.
	MemberDelay time.Duration
	// IDs restricts the run to these legacy ids. Staged items outside the set
	// are left untouched.
	IDs []int64
}

// Pipeline runs the migration stages sequentially.
type Pipeline struct {
	deps Deps
	opts Options
	log  logger.Logger
}

// New creates a Pipeline.
func New(deps Deps, opts Options, log logger.Logger) *Pipeline {
	return &Pipeline{deps: deps, opts: opts, log: log}
}

// Extract reads, normalizes and resolves every eligible member. Source
// failures are fatal.
func (p *Pipeline) Extract(ctx context.Context, report *Report) ([]*Item, error) {
	p = p.scoped(ctx)
	defer p.stageDone(StageExtract, time.Now())

	items, err := p.extract(ctx, report)
	for _, it := range items {
		if it.State == StateAssetsResolved {
			report.attempt()
			report.succeed()
			p.deps.Metrics.member(StageExtract, "succeeded")
		}
	}
	return items, err
}

// Relocate copies the assets of every resolved member.
func (p *Pipeline) Relocate(ctx context.Context, items []*Item, report *Report) error {
	p = p.scoped(ctx)
	defer p.stageDone(StageRelocate, time.Now())

	return p.each(ctx, report, p.selected(items, StateAssetsResolved), func(it *Item) {
		report.attempt()
		if p.relocate(ctx, it, report) {
			report.succeed()
			p.deps.Metrics.member(StageRelocate, "succeeded")
		}
	})
}

// Load writes every relocated member to the destination.
func (p *Pipeline) Load(ctx context.Context, items []*Item, report *Report) error {
	p = p.scoped(ctx)
	defer p.stageDone(StageLoad, time.Now())

	return p.each(ctx, report, p.selected(items, StateAssetsRelocated), func(it *Item) {
		report.attempt()
		p.load(ctx, it, report, StageLoad)
	})
}

// Migrate runs every stage in memory, taking each member through relocation
// and loading before moving on to the next.
func (p *Pipeline) Migrate(ctx context.Context, report *Report) ([]*Item, error) {
	p = p.scoped(ctx)
	defer p.stageDone(StageMigrate, time.Now())

	items, err := p.extract(ctx, report)
	if err != nil {
		return items, err
	}

	err = p.each(ctx, report, pending(items, StateAssetsResolved), func(it *Item) {
		report.attempt()
		if p.relocate(ctx, it, report) {
			p.load(ctx, it, report, StageMigrate)
		}
	})
	return items, err
}

// scoped returns a copy of p logging with the trace ID carried by ctx.
func (p *Pipeline) scoped(ctx context.Context) *Pipeline {
	run := *p
	run.log = p.log.WithContext(ctx)
	return &run
}

// each applies fn to items in order with the member delay in between. It stops
// early, marking the report interrupted, when ctx is done.
func (p *Pipeline) each(ctx context.Context, report *Report, items []*Item, fn func(*Item)) error {
	for i, it := range items {
		if i > 0 {
			if err := p.pause(ctx); err != nil {
				return p.interrupted(report, err, len(items)-i)
			}
		}
		if err := ctx.Err(); err != nil {
			return p.interrupted(report, err, len(items)-i)
		}
		fn(it)
	}
	return nil
}

func (p *Pipeline) interrupted(report *Report, err error, remaining int) error {
	report.Interrupted = true
	p.log.Warn("run interrupted, remaining members left for a later run",
		logger.Int("remaining", remaining),
		logger.Error(err))
	return errors.New(err).
		Component("migration").
		Category(errors.CategoryCancellation).
		Context("remaining", remaining).
		Build()
}

func (p *Pipeline) pause(ctx context.Context) error {
	if p.opts.MemberDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.opts.MemberDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Pipeline) stageDone(stage Stage, start time.Time) {
	now := time.Now()
	p.deps.Metrics.stageDone(stage, now.Sub(start).Seconds(), float64(now.Unix()))
	p.log.Info("stage finished", logger.String("stage", string(stage)), logger.Duration("elapsed", now.Sub(start)))
}

// extract builds items up to StateAssetsResolved, plus a Skipped item for every
// requested id the source did not return.
func (p *Pipeline) extract(ctx context.Context, report *Report) ([]*Item, error) {
	ids := uniqueIDs(p.opts.IDs)

	records, err := p.deps.Source.FetchMembers(ctx, ids)
	if err != nil {
		return nil, Fatal(StageExtract, err)
	}
	p.log.Info("legacy members fetched", logger.Int("count", len(records)), logger.Int("requested_ids", len(ids)))

	var meta map[int64]map[string]string
	if len(records) > 0 {
		recordIDs := make([]int64, len(records))
		for i := range records {
			recordIDs[i] = records[i].ExternalID
		}
		meta, err = p.deps.Source.FetchMetadata(ctx, recordIDs)
		if err != nil {
			return nil, Fatal(StageExtract, err)
		}
	}

	items := make([]*Item, 0, len(records)+len(ids))
	found := make(map[int64]bool, len(records))
	for i := range records {
		rec := &records[i]
		found[rec.ExternalID] = true

		if i > 0 {
			if err := p.pause(ctx); err != nil {
				return items, p.interrupted(report, err, len(records)-i)
			}
		}
		if err := ctx.Err(); err != nil {
			return items, p.interrupted(report, err, len(records)-i)
		}

		metadata := meta[rec.ExternalID]
		if metadata == nil {
			metadata = map[string]string{}
		}
		rec.Metadata = metadata

		it := &Item{ExternalID: rec.ExternalID, State: StateExtracted}
		items = append(items, it)
		if !actionable(metadata) {
			p.skip(it, report, "no actionable metadata")
			continue
		}
		p.normalize(ctx, it, rec, report)
	}

	for _, id := range ids {
		if found[id] {
			continue
		}
		it := &Item{ExternalID: id, State: StateExtracted}
		items = append(items, it)
		p.skip(it, report, "not found or not eligible in legacy store")
	}
	return items, nil
}

// actionable reports whether meta holds at least one non-blank value. A member
// without any is skipped rather than loaded as an empty row.
func actionable(meta map[string]string) bool {
	for _, v := range meta {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func (p *Pipeline) skip(it *Item, report *Report, reason string) {
	it.State = StateSkipped
	it.Error = reason
	report.skip(it.ExternalID, reason)
	p.deps.Metrics.member(StageExtract, "skipped")
	p.log.Info("member skipped", logger.Int64("external_id", it.ExternalID), logger.String("reason", reason))
}

func (p *Pipeline) normalize(ctx context.Context, it *Item, rec *member.LegacyRecord, report *Report) {
	it.Record = p.deps.Normalizer.Normalize(rec, rec.Metadata)
	if !p.advance(it, StateNormalized, report, StageExtract) {
		return
	}

	if it.Record.Email == "" {
		report.warn(it.ExternalID, "empty email")
	}

	res := p.deps.Resolver.Resolve(ctx, rec.ExternalID, rec.Metadata)
	it.Record.ProfileImage = res.ProfileImage
	it.Record.Resume = res.Resume
	p.advance(it, StateAssetsResolved, report, StageExtract)
}

// relocate fills it.Assets. Asset problems never fail the member.
func (p *Pipeline) relocate(ctx context.Context, it *Item, report *Report) bool {
	for _, assetType := range member.AssetTypes {
		ref := it.Record.Reference(assetType)
		if ref == nil {
			continue
		}
		asset, err := p.deps.Relocator.Relocate(ctx, ref, it.ExternalID, assetType)
		switch {
		case errors.Is(err, relocator.ErrExternalReference):
			report.warn(it.ExternalID, fmt.Sprintf("%s points to a third-party host and was not relocated", assetType))
			p.deps.Metrics.asset(string(assetType), "external", 0)
		case err != nil:
			report.assetFailure(it.ExternalID, string(assetType), ref.SourceURL, err)
			p.deps.Metrics.asset(string(assetType), "failed", 0)
		case asset == nil:
			// nothing to relocate
		case asset.Reused:
			it.Assets.Set(asset)
			report.AssetsReused++
			p.deps.Metrics.asset(string(assetType), "reused", 0)
		default:
			it.Assets.Set(asset)
			report.AssetsUploaded++
			p.deps.Metrics.asset(string(assetType), "uploaded", asset.Size)
		}
	}

	return p.advance(it, StateAssetsRelocated, report, StageRelocate)
}

// load upserts one member and counts the outcome.
func (p *Pipeline) load(ctx context.Context, it *Item, report *Report, stage Stage) {
	log := p.log.With(logger.Int64("external_id", it.ExternalID))

	res, err := p.deps.Loader.Upsert(ctx, it.Record, &it.Assets)
	if err != nil {
		log.Error("member load failed", logger.Error(err))
		it.fail(err)
		report.fail(it, stage, err)
		p.deps.Metrics.member(stage, "failed")
		return
	}

	for _, fileErr := range res.FileErrors {
		report.warn(it.ExternalID, "provenance not recorded: "+errors.ScrubMessage(fileErr.Error()))
	}

	if !p.advance(it, StateLoaded, report, stage) {
		return
	}
	if res.Outcome == datastore.OutcomeDuplicate {
		it.Duplicate = true
		report.duplicate()
		p.deps.Metrics.member(stage, "duplicate")
		return
	}
	report.succeed()
	p.deps.Metrics.member(stage, "succeeded")
	log.Info("member loaded",
		logger.Int64("member_id", int64(res.MemberID)),
		logger.Int("files", res.FilesWritten))
}

// advance moves it to next, failing the member when the transition is invalid.
func (p *Pipeline) advance(it *Item, next State, report *Report, stage Stage) bool {
	if err := it.advance(next); err != nil {
		p.log.Error("unexpected member state", logger.Int64("external_id", it.ExternalID), logger.Error(err))
		it.fail(err)
		report.fail(it, stage, err)
		p.deps.Metrics.member(stage, "failed")
		return false
	}
	return true
}

// selected returns the items in state want, restricted to Options.IDs when set.
func (p *Pipeline) selected(items []*Item, want State) []*Item {
	out := pending(items, want)
	if len(p.opts.IDs) == 0 {
		return out
	}
	return slices.DeleteFunc(out, func(it *Item) bool {
		return !slices.Contains(p.opts.IDs, it.ExternalID)
	})
}

func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
