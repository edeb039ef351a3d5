package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deusflow/technews/internal/chain"
	"github.com/deusflow/technews/internal/digest"
	"github.com/deusflow/technews/internal/execlog"
	"github.com/deusflow/technews/internal/metrics"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/notify"
	"github.com/deusflow/technews/internal/relevance"
	"github.com/deusflow/technews/internal/rss"
	"github.com/deusflow/technews/internal/site"
)

var taipei = time.FixedZone("Asia/Taipei", 8*3600)

const targetDate = "2025-03-01"

var runTime = time.Date(2025, 3, 2, 10, 0, 0, 0, taipei)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	res rss.Result
	err error
}

func (f *fakeFetcher) FetchAll(ctx context.Context, sources []news.Source) (rss.Result, error) {
	return f.res, f.err
}

// fakeChain reports one attempt per stage, or three failed attempts for
// failStage, which then ends the run.
type fakeChain struct {
	out       chain.Output
	failStage string
	input     chain.Input
	reached   []string
}

func (c *fakeChain) Run(ctx context.Context, in chain.Input, obs chain.Observer) (chain.Output, error) {
	c.input = in
	for _, stage := range chain.Stages {
		c.reached = append(c.reached, stage)
		now := time.Now()
		if stage == c.failStage {
			cause := errors.New("invalid json")
			for i := 1; i <= 3; i++ {
				obs(chain.Attempt{Stage: stage, Attempt: i, StartedAt: now, FinishedAt: now, Err: cause})
			}
			return chain.Output{}, &chain.StageError{Stage: stage, Attempts: 3, Err: cause}
		}
		obs(chain.Attempt{Stage: stage, Attempt: 1, StartedAt: now, FinishedAt: now})
	}
	return c.out, nil
}

func output(tag string) chain.Output {
	return chain.Output{
		Narrative: chain.NarrativeOutput{ReportText: "report " + tag},
		Condensed: chain.CondensationOutput{MessageText: "summary " + tag},
		Presentation: chain.PresentationOutput{
			HTML:  "<!DOCTYPE html><html><head><title>Daily " + tag + "</title></head><body>" + tag + "</body></html>",
			Title: "Daily " + tag,
		},
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Notify(ctx context.Context, a notify.Alert) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return true
}

func sources() []news.Source {
	return []news.Source{
		{ID: "technews", URL: "https://example.com/a", Region: news.RegionLocal, MaxItems: 5, BaseScore: 2},
		{ID: "hackernews", URL: "https://example.com/b", Region: news.RegionInternational, MaxItems: 3, BaseScore: 1},
	}
}

func rules() relevance.Rules {
	r := relevance.DefaultRules()
	r.Keywords.MustKeep = []string{"TSMC"}
	return r
}

func onDate(hour int) *time.Time {
	d, _ := time.ParseInLocation(news.DateLayout, targetDate, taipei)
	t := d.Add(time.Duration(hour) * time.Hour)
	return &t
}

func mustKeepItems(n int) []news.RawItem {
	var items []news.RawItem
	for i := 0; i < n; i++ {
		items = append(items, news.RawItem{
			Title:       fmt.Sprintf("TSMC update %d", i),
			Link:        fmt.Sprintf("https://example.com/%d", i),
			PublishedAt: onDate(8 + i),
			SourceID:    "technews",
		})
	}
	return items
}

type harness struct {
	dir      string
	fetcher  *fakeFetcher
	chain    *fakeChain
	store    *digest.FileStore
	site     *site.Site
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	p        *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir: dir,
		fetcher: &fakeFetcher{res: rss.Result{
			Items: mustKeepItems(5),
			Sources: []rss.SourceResult{
				{SourceID: "technews", Attempts: 1},
				{SourceID: "hackernews", Attempts: 2, Err: errors.New("timeout")},
			},
		}},
		chain:    &fakeChain{out: output("one")},
		store:    digest.NewFileStore(filepath.Join(dir, "latest.json")),
		site:     site.New(filepath.Join(dir, "docs"), "https://example.com/{date}.html", taipei, quietLogger()),
		notifier: &recordingNotifier{},
		metrics:  metrics.New(),
	}
	h.p = New(Options{
		Sources:          sources(),
		Fetcher:          h.fetcher,
		Selector:         relevance.NewSelector(rules(), sources(), taipei, quietLogger()),
		Chain:            h.chain,
		Store:            h.store,
		Pages:            h.site,
		Notifier:         h.notifier,
		Metrics:          h.metrics,
		ExecutionLogPath: filepath.Join(dir, "execution.json"),
		Location:         taipei,
		Logger:           quietLogger(),
		Now:              func() time.Time { return runTime },
	})
	return h
}

func (h *harness) record(t *testing.T) execlog.Record {
	t.Helper()
	rec, err := execlog.Load(filepath.Join(h.dir, "execution.json"))
	if err != nil {
		t.Fatalf("load execution record: %v", err)
	}
	return rec
}

func TestRun_PublishesDigest(t *testing.T) {
	h := newHarness(t)

	report, err := h.p.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Digest == nil || report.Digest.Date != targetDate {
		t.Fatalf("digest = %+v, want date %s", report.Digest, targetDate)
	}

	got, err := h.store.ReadLatest(context.Background())
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if got.SummaryText != "summary one" || got.DetailText != "report one" || got.Title != "Daily one" {
		t.Errorf("stored digest = %+v", got)
	}
	if got.PublicURL != "https://example.com/2025-03-01.html" {
		t.Errorf("public url = %q", got.PublicURL)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "docs", targetDate+".html")); err != nil {
		t.Errorf("page not written: %v", err)
	}

	rec := h.record(t)
	if rec.Outcome != execlog.OutcomeSuccess || rec.TargetDate != targetDate {
		t.Errorf("record outcome=%s date=%s", rec.Outcome, rec.TargetDate)
	}
	var degraded, stages int
	for _, e := range rec.Entries {
		if e.Status == execlog.StatusDegraded {
			degraded++
		}
		for _, s := range chain.Stages {
			if e.Name == s {
				stages++
			}
		}
	}
	if degraded != 1 || stages != 4 {
		t.Errorf("degraded=%d stage entries=%d, want 1 and 4", degraded, stages)
	}
	if len(h.notifier.alerts) != 0 {
		t.Errorf("unexpected alerts: %+v", h.notifier.alerts)
	}
	if h.metrics.DigestsPublished != 1 || h.metrics.SourcesFailed != 1 {
		t.Errorf("metrics published=%d failed=%d", h.metrics.DigestsPublished, h.metrics.SourcesFailed)
	}
}

func TestRun_MustKeepItemsWithFailedSource(t *testing.T) {
	h := newHarness(t)

	if _, err := h.p.Run(context.Background(), targetDate); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(h.chain.input.Items); n != 5 {
		t.Fatalf("chain received %d items, want 5", n)
	}
	for _, it := range h.chain.input.Items {
		if it.Score != 100 {
			t.Errorf("%q score = %d, want 100", it.Title, it.Score)
		}
	}
}

func TestRun_FetchFailureLeavesStoreUntouched(t *testing.T) {
	h := newHarness(t)
	h.fetcher.res = rss.Result{Sources: []rss.SourceResult{
		{SourceID: "technews", Attempts: 2, Err: errors.New("refused")},
		{SourceID: "hackernews", Attempts: 2, Err: errors.New("refused")},
	}}
	h.fetcher.err = rss.ErrNoItems

	_, err := h.p.Run(context.Background(), targetDate)
	if !errors.Is(err, rss.ErrNoItems) {
		t.Fatalf("err = %v, want ErrNoItems", err)
	}
	if step := FailedStep(err); step != StepFetch {
		t.Errorf("failed step = %q", step)
	}
	if _, err := h.store.ReadLatest(context.Background()); !errors.Is(err, digest.ErrNotFound) {
		t.Errorf("store written on fetch failure: %v", err)
	}
	if len(h.chain.reached) != 0 {
		t.Errorf("chain ran after fetch failure")
	}
	if len(h.notifier.alerts) != 1 || h.notifier.alerts[0].Step != StepFetch {
		t.Errorf("alerts = %+v", h.notifier.alerts)
	}
	rec := h.record(t)
	if rec.Outcome != execlog.OutcomeError || rec.FailedStep != StepFetch {
		t.Errorf("record outcome=%s step=%s", rec.Outcome, rec.FailedStep)
	}
}

func TestRun_EmptySelectionIsDistinct(t *testing.T) {
	h := newHarness(t)
	h.fetcher.res.Items = []news.RawItem{{Title: "old", Link: "https://example.com/old", PublishedAt: onDate(-48), SourceID: "technews"}}

	_, err := h.p.Run(context.Background(), targetDate)
	if !errors.Is(err, relevance.ErrEmptySelection) {
		t.Fatalf("err = %v, want ErrEmptySelection", err)
	}
	if FailedStep(err) != StepFilter {
		t.Errorf("failed step = %q", FailedStep(err))
	}
}

func TestRun_StageExhaustionKeepsPriorDigest(t *testing.T) {
	h := newHarness(t)
	if _, err := h.p.Run(context.Background(), targetDate); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before, _ := h.store.ReadLatest(context.Background())

	h.chain.failStage = chain.StageCondensation
	h.chain.out = output("two")
	h.chain.reached = nil
	_, err := h.p.Run(context.Background(), targetDate)
	if FailedStep(err) != chain.StageCondensation {
		t.Fatalf("err = %v, want condensation failure", err)
	}
	for _, s := range h.chain.reached {
		if s == chain.StagePresentation {
			t.Errorf("presentation ran after condensation failed")
		}
	}

	after, err := h.store.ReadLatest(context.Background())
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if after.Date != before.Date || after.SummaryText != before.SummaryText {
		t.Errorf("digest changed: %+v -> %+v", before, after)
	}

	rec := h.record(t)
	failed := 0
	for _, e := range rec.Entries {
		if e.Name == chain.StageCondensation && e.Status == execlog.StatusFailed {
			failed++
		}
	}
	if failed != 3 {
		t.Errorf("condensation failed entries = %d, want 3", failed)
	}
}

func TestRun_SecondRunOverwrites(t *testing.T) {
	h := newHarness(t)
	if _, err := h.p.Run(context.Background(), targetDate); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	h.chain.out = output("two")
	if _, err := h.p.Run(context.Background(), targetDate); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	got, err := h.store.ReadLatest(context.Background())
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if got.SummaryText != "summary two" {
		t.Errorf("summary = %q, want second run", got.SummaryText)
	}
}

func TestRun_InvalidDate(t *testing.T) {
	h := newHarness(t)
	_, err := h.p.Run(context.Background(), "03/01/2025")
	if FailedStep(err) != StepInit {
		t.Fatalf("err = %v, want init failure", err)
	}
	if len(h.chain.reached) != 0 {
		t.Errorf("chain ran for invalid date")
	}
}

// failingStore rejects every write.
type failingStore struct {
	digest.Store
}

func (failingStore) Publish(ctx context.Context, d digest.Digest) error {
	return errors.New("disk full")
}

func TestRun_StoreFailureKeepsPageHidden(t *testing.T) {
	h := newHarness(t)
	h.p.opts.Store = failingStore{h.store}

	_, err := h.p.Run(context.Background(), targetDate)
	if FailedStep(err) != StepPublish {
		t.Fatalf("err = %v, want publish failure", err)
	}

	pages, err := h.site.Pages(0)
	if err != nil || len(pages) != 0 {
		t.Errorf("page visible after failed publish: %+v, %v", pages, err)
	}
	rss, err := h.site.RSS(nil, runTime)
	if err != nil {
		t.Fatalf("RSS: %v", err)
	}
	if strings.Contains(rss, targetDate) {
		t.Errorf("feed lists the unpublished date:\n%s", rss)
	}
	entries, _ := os.ReadDir(filepath.Join(h.dir, "docs"))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".staged") {
			t.Errorf("staged page left behind: %s", e.Name())
		}
	}
	if _, err := h.store.ReadLatest(context.Background()); !errors.Is(err, digest.ErrNotFound) {
		t.Errorf("store changed: %v", err)
	}
}

func TestRun_RecordFollowsInjectedClock(t *testing.T) {
	h := newHarness(t)
	if _, err := h.p.Run(context.Background(), ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := h.record(t)
	if !rec.StartedAt.Equal(runTime) || !rec.FinishedAt.Equal(runTime) {
		t.Errorf("record times = %v..%v, want %v", rec.StartedAt, rec.FinishedAt, runTime)
	}
	for _, e := range rec.Entries {
		if e.Name == StepFetch && !e.StartedAt.Equal(runTime) {
			t.Errorf("fetch entry started at %v, want %v", e.StartedAt, runTime)
		}
	}
}
