// Package pipeline sequences one run: fetch, filter, the four chain
// stages, and publish. Any failure ends the run; the digest store is only
// written after every earlier step succeeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/technews/internal/chain"
	"github.com/deusflow/technews/internal/digest"
	"github.com/deusflow/technews/internal/execlog"
	"github.com/deusflow/technews/internal/logger"
	"github.com/deusflow/technews/internal/metrics"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/notify"
	"github.com/deusflow/technews/internal/relevance"
	"github.com/deusflow/technews/internal/rss"
)

// Steps of a run. Chain stages use their own names.
const (
	StepInit    = "init"
	StepFetch   = "fetch"
	StepFilter  = "filter"
	StepPublish = "publish"
)

// StepError is a fatal failure tagged with the step that caused it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep returns the step name carried by err, if any.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

// Fetcher retrieves raw items from every source.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []news.Source) (rss.Result, error)
}

// Selector filters and orders raw items for one date.
type Selector interface {
	Select(items []news.RawItem, date string) (relevance.Selection, error)
}

// Transformer runs the generative stages.
type Transformer interface {
	Run(ctx context.Context, in chain.Input, obs chain.Observer) (chain.Output, error)
}

// Pages holds the dated report pages. A staged page stays invisible until
// it is committed.
type Pages interface {
	StagePage(date, html string) error
	CommitPage(date string) error
	DiscardPage(date string)
	PageURL(date string) string
}

// Options wires a Pipeline. Notifier and Metrics may be nil.
type Options struct {
	Sources          []news.Source
	Fetcher          Fetcher
	Selector         Selector
	Chain            Transformer
	Store            digest.Store
	Pages            Pages
	Notifier         notify.Notifier
	Metrics          *metrics.Metrics
	ExecutionLogPath string
	Location         *time.Location
	Logger           *slog.Logger
	Now              func() time.Time
}

// Pipeline runs the daily digest.
type Pipeline struct {
	opts Options
	log  *slog.Logger
}

// Report is what a run produced.
type Report struct {
	Record execlog.Record
	Digest *digest.Digest
}

func New(opts Options) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Pipeline{opts: opts, log: logger.OrDefault(opts.Logger)}
}

// TargetDate returns yesterday in the digest timezone.
func (p *Pipeline) TargetDate() string {
	return news.Yesterday(p.opts.Now(), p.opts.Location)
}

// Run processes date, or yesterday when date is empty. The execution
// record is written whatever the outcome.
func (p *Pipeline) Run(ctx context.Context, date string) (Report, error) {
	started := p.opts.Now()
	if date == "" {
		date = p.TargetDate()
	}
	rec := execlog.NewRecorderWithClock(date, p.opts.Now)
	if _, err := time.Parse(news.DateLayout, date); err != nil {
		return p.finish(ctx, rec, started, date, nil, &StepError{Step: StepInit, Err: fmt.Errorf("invalid target date %q: %w", date, err)})
	}

	p.log.Info("🚀 pipeline started", "date", date, "run_id", rec.Snapshot().RunID)

	items, err := p.fetch(ctx, rec)
	if err != nil {
		return p.finish(ctx, rec, started, date, nil, err)
	}

	selection, err := p.filter(rec, items, date)
	if err != nil {
		return p.finish(ctx, rec, started, date, nil, err)
	}

	out, err := p.transform(ctx, rec, date, selection)
	if err != nil {
		return p.finish(ctx, rec, started, date, nil, err)
	}

	d, err := p.publish(ctx, rec, date, out)
	if err != nil {
		return p.finish(ctx, rec, started, date, nil, err)
	}

	return p.finish(ctx, rec, started, date, &d, nil)
}

func (p *Pipeline) fetch(ctx context.Context, rec *execlog.Recorder) ([]news.RawItem, error) {
	step := rec.Step(StepFetch)
	res, err := p.opts.Fetcher.FetchAll(ctx, p.opts.Sources)

	failed := res.Failed()
	for _, s := range failed {
		rec.Add(execlog.Entry{
			Name:       "source:" + s.SourceID,
			Attempt:    s.Attempts,
			Status:     execlog.StatusDegraded,
			StartedAt:  p.opts.Now().Add(-s.Duration),
			FinishedAt: p.opts.Now(),
			Error:      errString(s.Err),
		})
	}
	p.opts.Metrics.AddItemsFetched(len(res.Items))
	p.opts.Metrics.AddSourcesFailed(len(failed))

	details := map[string]any{
		"items":          len(res.Items),
		"sources":        len(res.Sources),
		"sources_failed": len(failed),
	}
	if err != nil {
		step.Fail(err, details)
		return nil, &StepError{Step: StepFetch, Err: err}
	}
	step.Done(details)
	return res.Items, nil
}

func (p *Pipeline) filter(rec *execlog.Recorder, items []news.RawItem, date string) (relevance.Selection, error) {
	step := rec.Step(StepFilter)
	sel, err := p.opts.Selector.Select(items, date)

	details := map[string]any{
		"kept":     len(sel.Items),
		"local":    sel.LocalCount,
		"other":    sel.OtherCount,
		"off_date": sel.OffDate,
	}
	if err != nil {
		step.Fail(err, details)
		return sel, &StepError{Step: StepFilter, Err: err}
	}
	p.opts.Metrics.AddItemsSelected(len(sel.Items))
	step.Done(details)
	return sel, nil
}

func (p *Pipeline) transform(ctx context.Context, rec *execlog.Recorder, date string, sel relevance.Selection) (chain.Output, error) {
	observe := func(a chain.Attempt) {
		e := execlog.Entry{
			Name:       a.Stage,
			Attempt:    a.Attempt,
			Status:     execlog.StatusSuccess,
			StartedAt:  a.StartedAt,
			FinishedAt: a.FinishedAt,
		}
		if a.Err != nil {
			e.Status = execlog.StatusFailed
			e.Error = a.Err.Error()
		}
		rec.Add(e)
		p.opts.Metrics.RecordStageAttempt(a.Err != nil)
	}

	out, err := p.opts.Chain.Run(ctx, chain.Input{Date: date, Items: sel.Items}, observe)
	if err != nil {
		step := "chain"
		var se *chain.StageError
		if errors.As(err, &se) {
			step = se.Stage
		}
		return out, &StepError{Step: step, Err: err}
	}
	return out, nil
}

// publish stages the page, replaces the digest in one write, and only
// then makes the page public.
func (p *Pipeline) publish(ctx context.Context, rec *execlog.Recorder, date string, out chain.Output) (digest.Digest, error) {
	step := rec.Step(StepPublish)

	d := digest.Digest{
		Date:        date,
		SummaryText: out.Condensed.MessageText,
		DetailText:  out.Narrative.ReportText,
		PublicURL:   p.opts.Pages.PageURL(date),
		Title:       out.Presentation.Title,
		GeneratedAt: p.opts.Now().In(p.opts.Location),
	}
	if err := d.Validate(); err != nil {
		step.Fail(err, nil)
		return d, &StepError{Step: StepPublish, Err: err}
	}

	if err := p.opts.Pages.StagePage(date, out.Presentation.HTML); err != nil {
		step.Fail(err, nil)
		return d, &StepError{Step: StepPublish, Err: err}
	}
	if err := p.opts.Store.Publish(ctx, d); err != nil {
		p.opts.Pages.DiscardPage(date)
		step.Fail(err, nil)
		return d, &StepError{Step: StepPublish, Err: err}
	}
	if err := p.opts.Pages.CommitPage(date); err != nil {
		step.Fail(err, map[string]any{"digest_published": true})
		return d, &StepError{Step: StepPublish, Err: err}
	}

	p.opts.Metrics.IncrementDigestsPublished()
	step.Done(map[string]any{"public_url": d.PublicURL})
	p.log.Info("📰 digest published", "date", date, "url", d.PublicURL)
	return d, nil
}

// finish finalizes and saves the record, reports a failure, and updates
// metrics.
func (p *Pipeline) finish(ctx context.Context, rec *execlog.Recorder, started time.Time, date string, d *digest.Digest, runErr error) (Report, error) {
	failedStep := FailedStep(runErr)
	record := rec.Finalize(failedStep, runErr)

	if p.opts.ExecutionLogPath != "" {
		if err := execlog.Save(p.opts.ExecutionLogPath, record); err != nil {
			p.log.Error("failed to save execution record", "path", p.opts.ExecutionLogPath, "error", err)
		}
	}

	p.opts.Metrics.RecordRun(date, p.opts.Now().Sub(started), failedStep, runErr)

	if runErr != nil {
		p.log.Error("❌ pipeline failed", "date", date, "step", failedStep, "error", runErr)
		if p.opts.Notifier != nil {
			alert := notify.Alert{Step: failedStep, Summary: runErr.Error(), Time: p.opts.Now().In(p.opts.Location)}
			if !p.opts.Notifier.Notify(context.WithoutCancel(ctx), alert) {
				p.log.Warn("⚠️ failure notification was not delivered", "step", failedStep)
			}
		}
		return Report{Record: record}, runErr
	}

	p.log.Info("✅ pipeline finished", "date", date, "duration", record.Duration())
	return Report{Record: record, Digest: d}, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
