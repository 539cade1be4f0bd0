// Package pipeline runs alert and digest jobs from fetch through publish.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stage is a step of a run. The last three are terminal.
type Stage string

const (
	StageFetching   Stage = "FETCHING"
	StageWindowing  Stage = "WINDOWING"
	StageEvaluating Stage = "EVALUATING"
	StageRendering  Stage = "RENDERING"
	StageComposing  Stage = "COMPOSING"
	StagePublishing Stage = "PUBLISHING"
	StageDone       Stage = "DONE"
	StageSkipped    Stage = "SKIPPED"
	StageFailed     Stage = "FAILED"
)

// Kind distinguishes the two orchestrator modes.
type Kind string

const (
	KindAlert  Kind = "alert"
	KindDigest Kind = "digest"
)

// Result is the outcome of one run. State is DONE, SKIPPED or FAILED; Stage is
// the last non-terminal stage entered, which for FAILED runs is where it broke.
type Result struct {
	RunID    string
	State    Stage
	Stage    Stage
	Decision model.AlertDecision
	Change   *model.ChangeResult
	Movement model.Movement
	Text     string
	PostID   string
	Err      error
}

// Reason is the label used for metrics and the status line.
func (r Result) Reason() string {
	if r.State == StageFailed {
		return string(r.Stage)
	}
	return string(r.Decision.Reason)
}

// Job is one configured run of an orchestrator. Run never returns an error or
// panics; every outcome is reported in the Result.
type Job interface {
	Name() string
	Kind() Kind
	Run(ctx context.Context) Result
}

// Observer receives run metrics. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveRun(job, kind, state, reason string, at time.Time)
	ObserveStage(job, stage string, d time.Duration)
	FetchFailed(source string)
}

type nopObserver struct{}

func (nopObserver) ObserveRun(string, string, string, string, time.Time) {}
func (nopObserver) ObserveStage(string, string, time.Duration)           {}
func (nopObserver) FetchFailed(string)                                   {}

// tracker follows a single run through its stages, timing each one.
type tracker struct {
	job     string
	kind    Kind
	obs     Observer
	log     *zap.Logger
	now     func() time.Time
	res     Result
	started time.Time
}

func newTracker(job string, kind Kind, obs Observer, log *zap.Logger, now func() time.Time) *tracker {
	if obs == nil {
		obs = nopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	id := uuid.NewString()
	return &tracker{
		job:  job,
		kind: kind,
		obs:  obs,
		log:  log.With(zap.String("job", job), zap.String("run_id", id)),
		now:  now,
		res:  Result{RunID: id},
	}
}

// enter closes the current stage's timer and starts the next.
func (t *tracker) enter(stage Stage) {
	t.stop()
	t.res.Stage = stage
	t.started = t.now()
	t.log.Debug("stage", zap.String("stage", string(stage)))
}

func (t *tracker) stop() {
	if t.res.Stage != "" && !t.started.IsZero() {
		t.obs.ObserveStage(t.job, string(t.res.Stage), t.now().Sub(t.started))
	}
	t.started = time.Time{}
}

func (t *tracker) skip(decision model.AlertDecision) Result {
	t.res.Decision = decision
	return t.finish(StageSkipped, nil)
}

func (t *tracker) fail(err error) Result {
	return t.finish(StageFailed, err)
}

func (t *tracker) done(postID string) Result {
	t.res.PostID = postID
	return t.finish(StageDone, nil)
}

func (t *tracker) finish(state Stage, err error) Result {
	t.stop()
	t.res.State = state
	t.res.Err = err
	t.obs.ObserveRun(t.job, string(t.kind), string(state), t.res.Reason(), t.now())

	fields := []zap.Field{
		zap.String("state", string(state)),
		zap.String("stage", string(t.res.Stage)),
		zap.String("reason", t.res.Reason()),
	}
	switch state {
	case StageFailed:
		t.log.Error("run failed", append(fields, zap.Error(err))...)
	case StageSkipped:
		t.log.Info("run skipped", fields...)
	default:
		t.log.Info("run done", append(fields, zap.String("post_id", t.res.PostID))...)
	}
	return t.res
}

// Summary is the one-line terminal status of a run.
func (r Result) Summary(job string) string {
	s := fmt.Sprintf("%s: %s (%s)", job, r.State, r.Reason())
	if r.PostID != "" {
		s += " post=" + r.PostID
	}
	if r.Err != nil {
		s += " error=" + r.Err.Error()
	}
	return s
}
