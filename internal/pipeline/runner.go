// Package pipeline drives one refresh run: fetch, detect, and publish only
// when the generated artifacts differ from what HEAD already holds.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/georefresh/internal/artifact"
	"github.com/zjrosen/georefresh/internal/cachemanager"
	"github.com/zjrosen/georefresh/internal/config"
	"github.com/zjrosen/georefresh/internal/detect"
	"github.com/zjrosen/georefresh/internal/git"
	"github.com/zjrosen/georefresh/internal/log"
	"github.com/zjrosen/georefresh/internal/publish"
	"github.com/zjrosen/georefresh/internal/pubsub"
	"github.com/zjrosen/georefresh/internal/source"
	"github.com/zjrosen/georefresh/internal/store"
	"github.com/zjrosen/georefresh/internal/tracing"
)

// ErrNoArtifacts is returned when the transformer left nothing under the
// configured paths. Publishing that would delete all data.
var ErrNoArtifacts = errors.New("transform produced no artifacts")

// DefaultLeaseTTL bounds how long a crashed run can block the next one.
const DefaultLeaseTTL = 30 * time.Minute

// Config holds the runner settings.
type Config struct {
	// Paths are the artifact files or directories, relative to the repo root.
	Paths         []string
	Remote        string
	Branch        string
	SyncBeforeRun bool
	LeaseTTL      time.Duration
	// CacheTTL bounds how long canonical artifacts read from git are cached.
	CacheTTL            time.Duration
	CoordinatePrecision int
	Publish             publish.Config
}

// ConfigFrom extracts runner settings from the application config.
func ConfigFrom(c config.Config) Config {
	return Config{
		Paths:               c.Artifacts.Paths,
		Remote:              c.Git.Remote,
		Branch:              c.Git.Branch,
		SyncBeforeRun:       c.Git.SyncBeforeRun,
		LeaseTTL:            c.Store.LeaseTTL,
		CacheTTL:            c.Detect.CacheTTL,
		CoordinatePrecision: c.Detect.CoordinatePrecision,
		Publish:             publish.ConfigFrom(c),
	}
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore persists runs, artifact states and leases in db.
func WithStore(db *store.DB) Option {
	return func(r *Runner) {
		r.runs = db.RunRepository()
		r.states = db.ArtifactStateRepository()
		r.leases = db.LeaseRepository()
	}
}

// WithLeases serializes runs through leases. Without it only runs inside
// this process are serialized.
func WithLeases(leases store.LeaseRepository) Option {
	return func(r *Runner) {
		r.leases = leases
	}
}

// WithCache sets the cache for canonical artifacts read from git.
func WithCache(cache cachemanager.CacheManager[string, artifact.Artifact]) Option {
	return func(r *Runner) {
		r.cache = cache
	}
}

// WithTracer records spans for each run.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner executes runs against one work tree. Runs never overlap.
type Runner struct {
	cfg         Config
	git         git.Executor
	transformer source.Transformer
	detector    *detect.Detector
	publisher   *publish.Publisher

	canon    artifact.Canonicalizer
	cache    cachemanager.CacheManager[string, artifact.Artifact]
	previous *cachemanager.ReadThroughCache[string, artifact.Artifact, revPath]

	runs   store.RunRepository
	states store.ArtifactStateRepository
	leases store.LeaseRepository

	tracer  trace.Tracer
	events  *pubsub.Broker[Run]
	now     func() time.Time
	running atomic.Bool
}

type revPath struct {
	rev, path string
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, executor git.Executor, transformer source.Transformer, opts ...Option) *Runner {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	r := &Runner{
		cfg:         cfg,
		git:         executor,
		transformer: transformer,
		detector:    detect.New(),
		publisher:   publish.New(executor, cfg.Publish),
		canon:       artifact.NewCanonicalizer(cfg.CoordinatePrecision),
		tracer:      noop.NewTracerProvider().Tracer(tracing.DefaultServiceName),
		events:      pubsub.NewBroker[Run](),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = cachemanager.NewInMemoryCacheManager[string, artifact.Artifact]("committed-artifacts", cfg.CacheTTL, 2*cfg.CacheTTL)
	}

	load := artifact.RevisionLoader(executor, r.canon)
	r.previous = cachemanager.NewReadThroughCache[string, artifact.Artifact, revPath](r.cache,
		func(ctx context.Context, in revPath) (artifact.Artifact, error) {
			return load(ctx, in.rev, in.path)
		}, false)
	return r
}

// Subscribe streams run lifecycle events until ctx is done.
func (r *Runner) Subscribe(ctx context.Context) <-chan pubsub.Event[Run] {
	return r.events.Subscribe(ctx)
}

// Close releases subscribers.
func (r *Runner) Close() {
	r.events.Close()
}

// Run executes one run to completion. The returned Run is always non-nil;
// the error is a *StageError whenever the run failed.
func (r *Runner) Run(ctx context.Context, trigger Trigger) (*Run, error) {
	run := newRun(trigger, r.cfg.Branch, r.now())
	run.Transformer = r.transformer.Name()

	ctx, span := r.tracer.Start(ctx, tracing.SpanRun, trace.WithAttributes(
		attribute.String(tracing.AttrRunID, run.ID),
		attribute.String(tracing.AttrRunTrigger, string(trigger)),
		attribute.String(tracing.AttrBranch, run.Branch),
		attribute.String(tracing.AttrTransformer, run.Transformer),
	))
	log.Info(log.CatPipeline, "Run started", "run", run.ID, "trigger", trigger, "transformer", run.Transformer)
	r.events.Publish(pubsub.RunStartedEvent, *run)

	err := r.execute(ctx, run)
	r.finish(ctx, run)

	span.SetAttributes(
		attribute.String(tracing.AttrRepo, run.Repo),
		attribute.String(tracing.AttrRunOutcome, string(run.Outcome)),
	)
	if err != nil {
		span.SetAttributes(attribute.String(tracing.AttrErrorKind, KindName(err)))
	}
	tracing.End(span, err)
	return run, err
}

func (r *Runner) execute(ctx context.Context, run *Run) error {
	if !r.running.CompareAndSwap(false, true) {
		return r.fail(ctx, run, ErrRunInProgress, errors.New("a run is already executing in this process"))
	}
	defer r.running.Store(false)

	root, err := r.git.GetRepoRoot(ctx)
	if err != nil {
		return r.fail(ctx, run, ErrPrepare, err)
	}
	run.Repo = root

	release, err := r.acquire(ctx, run)
	if err != nil {
		return err
	}
	defer release()

	if r.cfg.SyncBeforeRun {
		if err := r.git.PullFastForward(ctx, r.cfg.Remote, r.cfg.Branch); err != nil {
			return r.fail(ctx, run, ErrPrepare, fmt.Errorf("syncing with %s/%s: %w", r.cfg.Remote, r.cfg.Branch, err))
		}
	}
	if run.Base, err = r.git.Head(ctx); err != nil {
		return r.fail(ctx, run, ErrPrepare, fmt.Errorf("reading HEAD: %w", err))
	}
	if err := r.transformer.Prepare(ctx); err != nil {
		return r.fail(ctx, run, ErrPrepare, err)
	}

	candidate, err := r.fetch(ctx, run)
	if err != nil {
		return err
	}
	report, err := r.detect(ctx, run, candidate)
	if err != nil {
		return err
	}
	if !report.Changed {
		run.Outcome = OutcomeNoop
		return r.advance(ctx, run, StateDone)
	}
	return r.publish(ctx, run, candidate)
}

func (r *Runner) acquire(ctx context.Context, run *Run) (release func(), err error) {
	if r.leases == nil {
		return func() {}, nil
	}
	key := run.Repo + "#" + run.Branch
	if _, err := r.leases.Acquire(ctx, key, run.ID, r.cfg.LeaseTTL); err != nil {
		if errors.Is(err, store.ErrLeaseHeld) {
			trace.SpanFromContext(ctx).AddEvent(tracing.EventLeaseHeld)
			return nil, r.fail(ctx, run, ErrRunInProgress, err)
		}
		return nil, r.fail(ctx, run, ErrPrepare, fmt.Errorf("acquiring lease: %w", err))
	}
	return func() {
		if err := r.leases.Release(context.WithoutCancel(ctx), key, run.ID); err != nil {
			log.Warn(log.CatDB, "Releasing lease failed", "key", key, "error", err)
		}
	}, nil
}

func (r *Runner) fetch(ctx context.Context, run *Run) (*artifact.Set, error) {
	if err := r.advance(ctx, run, StateFetching); err != nil {
		return nil, err
	}
	r.save(ctx, run)

	ctx, end := tracing.StartStage(ctx, r.tracer, tracing.SpanFetch,
		attribute.String(tracing.AttrTransformer, run.Transformer))
	candidate, err := r.transform(ctx, run.Repo)
	if err == nil {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int(tracing.AttrFiles, candidate.Len()))
	}
	end(err)
	if err != nil {
		return nil, r.fail(ctx, run, ErrTransform, err)
	}
	run.CandidateHash = candidate.Hash().String()
	log.Info(log.CatFetch, "Candidate artifacts ready", "files", candidate.Len(), "hash", candidate.Hash().Short())
	return candidate, nil
}

func (r *Runner) transform(ctx context.Context, root string) (*artifact.Set, error) {
	if err := r.transformer.Transform(ctx, root); err != nil {
		return nil, err
	}
	candidate, err := artifact.LoadWorkTree(root, r.cfg.Paths, r.canon)
	if err != nil {
		return nil, fmt.Errorf("loading candidate artifacts: %w", err)
	}
	if candidate.Len() == 0 {
		return nil, fmt.Errorf("%w under %v", ErrNoArtifacts, r.cfg.Paths)
	}
	return candidate, nil
}

func (r *Runner) detect(ctx context.Context, run *Run, candidate *artifact.Set) (detect.Report, error) {
	if err := r.advance(ctx, run, StateDetecting); err != nil {
		return detect.Report{}, err
	}

	ctx, end := tracing.StartStage(ctx, r.tracer, tracing.SpanDetect,
		attribute.String(tracing.AttrBase, run.Base))
	report, err := r.compare(ctx, run.Base, candidate)
	if err == nil {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Bool(tracing.AttrChanged, report.Changed),
			attribute.String(tracing.AttrSummary, report.Summary()),
		)
	}
	end(err)
	if err != nil {
		return detect.Report{}, r.fail(ctx, run, ErrDetection, err)
	}

	run.Summary = report.Summary()
	log.Info(log.CatDetect, "Compared with HEAD", "changed", report.Changed, "summary", run.Summary)
	return report, nil
}

func (r *Runner) compare(ctx context.Context, base string, candidate *artifact.Set) (detect.Report, error) {
	previous, err := artifact.LoadRevision(ctx, r.git, r.loadPrevious, base, r.cfg.Paths)
	if err != nil {
		return detect.Report{}, fmt.Errorf("loading published artifacts: %w", err)
	}
	return r.detector.Compare(candidate, previous)
}

// loadPrevious reads a committed artifact through the cache. A full commit
// hash plus path never changes content, so entries never go stale.
func (r *Runner) loadPrevious(ctx context.Context, rev, p string) (artifact.Artifact, error) {
	return r.previous.GetWithRefresh(ctx, rev+":"+p, revPath{rev: rev, path: p}, r.cfg.CacheTTL)
}

func (r *Runner) publish(ctx context.Context, run *Run, candidate *artifact.Set) error {
	if err := r.advance(ctx, run, StatePublishing); err != nil {
		return err
	}

	ctx, end := tracing.StartStage(ctx, r.tracer, tracing.SpanPublish)
	res, err := r.publisher.Publish(ctx, publish.Request{Changed: true, Paths: r.cfg.Paths, Base: run.Base})
	if res.Commit != "" {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String(tracing.AttrCommit, res.Commit))
	}
	end(err)

	run.Commit = res.Commit
	run.Pushed = res.Pushed
	if err != nil {
		return r.fail(ctx, run, ErrPublish, err)
	}

	if res.Status == publish.StatusCommitted {
		run.Outcome = OutcomeCommitted
		r.recordStates(ctx, run, candidate)
	} else {
		run.Outcome = OutcomeNoop
	}
	return r.advance(ctx, run, StateDone)
}

// advance moves run to next and announces it.
func (r *Runner) advance(ctx context.Context, run *Run, next State) error {
	from := run.State
	if err := run.transition(next); err != nil {
		return err
	}
	trace.SpanFromContext(ctx).AddEvent(tracing.EventStateChanged, trace.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(next)),
	))
	log.Debug(log.CatPipeline, "State changed", "run", run.ID, "from", from, "to", next)
	r.events.Publish(pubsub.StateChangedEvent, *run)
	return nil
}

// fail marks run as failed in its current state and returns the StageError.
func (r *Runner) fail(ctx context.Context, run *Run, kind, err error) error {
	serr := &StageError{Kind: kind, State: run.State, Err: err}
	run.Err = serr
	run.Outcome = OutcomeFailed
	if terr := r.advance(ctx, run, StateFailed); terr != nil {
		log.ErrorErr(log.CatPipeline, "Cannot mark run failed", terr, "run", run.ID)
	}
	return serr
}

func (r *Runner) finish(ctx context.Context, run *Run) {
	run.FinishedAt = r.now()
	if !run.State.Terminal() {
		// Only an illegal transition leaves a run mid-pipeline.
		run.State = StateFailed
		run.Outcome = OutcomeFailed
	}
	r.save(ctx, run)

	fields := []any{"run", run.ID, "outcome", run.Outcome, "duration", run.Duration().Round(time.Millisecond)}
	if run.Commit != "" {
		fields = append(fields, "commit", run.Commit)
	}
	if run.Err != nil {
		log.ErrorErr(log.CatPipeline, "Run failed", run.Err, fields...)
	} else {
		log.Info(log.CatPipeline, "Run finished", fields...)
	}
	r.events.Publish(pubsub.RunFinishedEvent, *run)
}

// save persists the run record. History is informational, so a failed write
// is logged rather than failing the run.
func (r *Runner) save(ctx context.Context, run *Run) {
	if r.runs == nil {
		return
	}
	if err := r.runs.Save(context.WithoutCancel(ctx), run.record()); err != nil {
		log.ErrorErr(log.CatDB, "Saving run failed", err, "run", run.ID)
	}
}

func (r *Runner) recordStates(ctx context.Context, run *Run, candidate *artifact.Set) {
	if r.states == nil {
		return
	}
	now := r.now()
	states := make([]store.ArtifactState, 0, candidate.Len())
	for _, a := range candidate.All() {
		states = append(states, store.ArtifactState{
			Path:       a.Path,
			Hash:       a.Hash.String(),
			CommitHash: run.Commit,
			RunID:      run.ID,
			UpdatedAt:  now,
		})
	}
	if err := r.states.Replace(context.WithoutCancel(ctx), run.Repo, run.Branch, states); err != nil {
		log.ErrorErr(log.CatDB, "Recording artifact states failed", err, "run", run.ID)
	}
}
