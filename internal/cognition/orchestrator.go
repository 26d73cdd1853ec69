package cognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/murmur/internal/memory"
	"github.com/blueberrycongee/murmur/internal/metrics"
	"github.com/blueberrycongee/murmur/internal/observability"
	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

// Cycle stages, in execution order.
const (
	StageGather   = "gather"
	StageThink    = "think"
	StageScore    = "score"
	StagePersist  = "persist"
	StageRetrieve = "retrieve"
	StageDecide   = "decide"
	StageAct      = "act"
)

// DefaultCallTimeout bounds every external call made by the orchestrator.
const DefaultCallTimeout = 30 * time.Second

// Dependencies are the collaborators an Orchestrator needs.
type Dependencies struct {
	Completer Completer
	Embedder  memory.Embedder
	ShortTerm *memory.ShortTermMemory
	Scorer    memory.Scorer
	LongTerm  memory.LongTermMemory
	Context   ContextSource
	Sink      ActionSink
}

func (d Dependencies) validate() error {
	var missing []string
	if d.Completer == nil {
		missing = append(missing, "completer")
	}
	if d.Embedder == nil {
		missing = append(missing, "embedder")
	}
	if d.ShortTerm == nil {
		missing = append(missing, "short-term memory")
	}
	if d.Scorer == nil {
		missing = append(missing, "scorer")
	}
	if d.LongTerm == nil {
		missing = append(missing, "long-term memory")
	}
	if d.Context == nil {
		missing = append(missing, "context source")
	}
	if d.Sink == nil {
		missing = append(missing, "action sink")
	}
	if len(missing) > 0 {
		return fmt.Errorf("orchestrator: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Orchestrator runs cognitive cycles and answers interactions.
type Orchestrator struct {
	deps        Dependencies
	policy      atomic.Pointer[Policy]
	recorder    PostRecorder
	archiver    Archiver
	username    string
	callTimeout time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithRecorder records published posts so later cycles see them.
func WithRecorder(recorder PostRecorder) Option {
	return func(o *Orchestrator) { o.recorder = recorder }
}

// WithArchiver archives published posts.
func WithArchiver(archiver Archiver) Option {
	return func(o *Orchestrator) { o.archiver = archiver }
}

// WithUsername sets the name recorded on published posts.
func WithUsername(username string) Option {
	return func(o *Orchestrator) { o.username = username }
}

// WithCallTimeout overrides DefaultCallTimeout.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator creates an orchestrator running with policy.
func NewOrchestrator(deps Dependencies, policy Policy, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		deps:        deps,
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
		tracer:      otel.Tracer(observability.TracerName),
		now:         time.Now,
	}
	o.policy.Store(&policy)
	for _, opt := range opts {
		opt(o)
	}
	if o.username == "" {
		o.username = policy.Handle
	}
	return o, nil
}

// Policy returns the policy in effect.
func (o *Orchestrator) Policy() Policy {
	return *o.policy.Load()
}

// SetPolicy replaces the policy for subsequent cycles. Running cycles keep the policy they
// started with.
func (o *Orchestrator) SetPolicy(p Policy) {
	o.policy.Store(&p)
}

// RunCycle executes one cognitive cycle. A failing stage aborts the cycle; the returned result
// carries whatever the completed stages produced.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleResult, error) {
	ctx, cycleID := observability.GetOrCreateCycleID(ctx)
	logger := o.logger.With("cycle_id", cycleID)
	policy := o.Policy()
	start := o.now()
	res := CycleResult{CycleID: cycleID}

	fail := func(stage string, err error) (CycleResult, error) {
		if errors.Is(err, ErrInterrupted) {
			metrics.CyclesTotal.WithLabelValues("interrupted").Inc()
			logger.Info("cycle stopped for shutdown", "before_stage", stage, "duration", o.now().Sub(start))
			return res, fmt.Errorf("cycle %s: %s: %w", cycleID, stage, err)
		}
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		logger.Warn("cycle aborted", "stage", stage, "error", err, "duration", o.now().Sub(start))
		return res, fmt.Errorf("cycle %s: %s: %w", cycleID, stage, err)
	}

	var (
		tc         ThoughtContext
		pc         PostContext
		thoughtVec []float32
	)
	if err := o.stage(ctx, cycleID, StageGather, func(ctx context.Context) error {
		posts, err := callWithTimeout(ctx, o.callTimeout, func(ctx context.Context) ([]Post, error) {
			return o.deps.Context.RecentPosts(ctx, policy.RecentPostsLimit)
		})
		if err != nil {
			return fmt.Errorf("recent posts: %w", err)
		}
		external, err := callWithTimeout(ctx, o.callTimeout, func(ctx context.Context) ([]string, error) {
			return o.deps.Context.ExternalContext(ctx, policy.ExternalContextLimit)
		})
		if err != nil {
			return fmt.Errorf("external context: %w", err)
		}
		tc = ThoughtContext{
			RecentPosts:      posts,
			ExternalContext:  external,
			ShortTermSummary: o.deps.ShortTerm.Recent(policy.ShortTermSummarySize),
		}
		return nil
	}); err != nil {
		return fail(StageGather, err)
	}

	if err := o.stage(ctx, cycleID, StageThink, func(ctx context.Context) error {
		thought, err := o.complete(ctx, ThoughtPrompt(tc))
		if err != nil {
			return err
		}
		res.Thought = thought
		thoughtVec, err = o.remember(ctx, thought, memory.SourceInternalThought)
		return err
	}); err != nil {
		return fail(StageThink, err)
	}

	if err := o.stage(ctx, cycleID, StageScore, func(ctx context.Context) error {
		significance, scoring, err := o.deps.Scorer.Score(ctx, res.Thought)
		if err != nil {
			return err
		}
		res.Significance = significance
		res.Metrics = scoring
		metrics.ThoughtSignificance.Observe(significance)
		return nil
	}); err != nil {
		return fail(StageScore, err)
	}

	if err := o.stage(ctx, cycleID, StagePersist, func(ctx context.Context) error {
		if !policy.ShouldPersist(res.Significance) {
			res.Stored = memory.StoreResult{Outcome: memory.OutcomeSkipped, Significance: res.Significance}
		} else {
			res.Stored = o.deps.LongTerm.Persist(ctx, res.Thought, res.Significance)
		}
		metrics.MemoryStoreTotal.WithLabelValues(res.Stored.Outcome.String()).Inc()
		return res.Stored.Err
	}); err != nil {
		return fail(StagePersist, err)
	}

	if err := o.stage(ctx, cycleID, StageRetrieve, func(ctx context.Context) error {
		memories, err := o.deps.LongTerm.RetrieveRelevant(ctx, res.Thought, policy.MemoryLimit)
		if err != nil {
			return err
		}
		res.Memories = memories
		pc = PostContext{
			Thought:         res.Thought,
			Context:         tc,
			Memories:        memories,
			RelatedThoughts: o.relatedThoughts(res.Thought, thoughtVec, policy.RelatedThoughtsLimit),
		}
		return nil
	}); err != nil {
		return fail(StageRetrieve, err)
	}

	var act bool
	if err := o.stage(ctx, cycleID, StageDecide, func(ctx context.Context) error {
		act = policy.ShouldPost(res.Significance, res.Thought)
		observability.RecordSignificance(trace.SpanFromContext(ctx), res.Significance, act)
		return nil
	}); err != nil {
		return fail(StageDecide, err)
	}
	if !act {
		metrics.CyclesTotal.WithLabelValues("idle").Inc()
		logger.Info("cycle finished without action",
			"significance", res.Significance,
			"stored", res.Stored.Outcome.String(),
			"duration", o.now().Sub(start),
		)
		return res, nil
	}

	if err := o.stage(ctx, cycleID, StageAct, func(ctx context.Context) error {
		content, err := o.complete(ctx, PostPrompt(pc))
		if err != nil {
			return err
		}
		content = CleanPost(content)
		if err := ValidatePost(content); err != nil {
			return err
		}
		res.Post = content
		res.Wallets = WalletAddresses(content)
		if len(res.Wallets) > 0 {
			metrics.WalletAddressesDetected.Add(float64(len(res.Wallets)))
			logger.Info("post mentions wallet addresses", "addresses", res.Wallets)
		}

		remoteID, err := callWithTimeout(ctx, o.callTimeout, func(ctx context.Context) (string, error) {
			return o.deps.Sink.Publish(ctx, content)
		})
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		res.RemoteID = remoteID
		res.Acted = true
		o.published(ctx, logger, Post{Content: content, Kind: PostKindPost, RemoteID: remoteID})
		return nil
	}); err != nil {
		return fail(StageAct, err)
	}

	metrics.CyclesTotal.WithLabelValues("acted").Inc()
	logger.Info("cycle posted",
		"significance", res.Significance,
		"remote_id", res.RemoteID,
		"duration", o.now().Sub(start),
	)
	return res, nil
}

// HandleInteraction remembers an inbound message and replies when it is addressed to the agent.
func (o *Orchestrator) HandleInteraction(ctx context.Context, in Interaction) (InteractionResult, error) {
	policy := o.Policy()
	logger := o.logger.With("interaction_id", in.ID)
	res := InteractionResult{InteractionID: in.ID}

	if _, err := o.remember(ctx, in.Text, memory.SourceInteraction); err != nil {
		logger.Warn("interaction not embedded", "error", err)
		o.deps.ShortTerm.Append(memory.ShortTermEntry{
			Content:   in.Text,
			Timestamp: o.now(),
			Source:    memory.SourceInteraction,
		})
		metrics.ShortTermSize.Set(float64(o.deps.ShortTerm.Len()))
	}

	memories, err := o.deps.LongTerm.RetrieveRelevant(ctx, in.Text, policy.InteractionMemoryLimit)
	if err != nil {
		metrics.InteractionsTotal.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("interaction %s: retrieve memories: %w", in.ID, err)
	}
	res.Memories = memories

	if !policy.ShouldRespond(in) {
		metrics.InteractionsTotal.WithLabelValues("ignored").Inc()
		logger.Debug("interaction not addressed to agent")
		return res, nil
	}

	if err := interrupted(ctx); err != nil {
		metrics.InteractionsTotal.WithLabelValues("interrupted").Inc()
		return res, fmt.Errorf("interaction %s: %w", in.ID, err)
	}

	response, err := o.complete(ctx, ResponsePrompt(in, memories))
	if err == nil {
		response = CleanPost(response)
		err = ValidatePost(response)
	}
	if err != nil {
		metrics.InteractionsTotal.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("interaction %s: generate response: %w", in.ID, err)
	}
	res.Response = response

	remoteID, err := callWithTimeout(ctx, o.callTimeout, func(ctx context.Context) (string, error) {
		return o.deps.Sink.Reply(ctx, response, in.ID)
	})
	if err != nil {
		metrics.InteractionsTotal.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("interaction %s: reply: %w", in.ID, err)
	}
	res.RemoteID = remoteID
	res.Responded = true
	o.published(ctx, logger, Post{Content: response, Kind: PostKindReply, RemoteID: remoteID})

	metrics.InteractionsTotal.WithLabelValues("responded").Inc()
	logger.Info("replied to interaction", "remote_id", remoteID)
	return res, nil
}

// stage runs fn inside a span and records its latency and failures. It does not start once
// shutdown has begun.
func (o *Orchestrator) stage(ctx context.Context, cycleID, name string, fn func(ctx context.Context) error) error {
	if err := interrupted(ctx); err != nil {
		return err
	}
	ctx, span := observability.StartStageSpan(ctx, o.tracer, cycleID, name)
	defer span.End()

	start := o.now()
	err := fn(ctx)
	metrics.RecordStage(name, o.now().Sub(start))
	if err != nil {
		observability.RecordError(span, err)
		metrics.RecordStageFailure(name, errorKind(err))
	}
	return err
}

func (o *Orchestrator) complete(ctx context.Context, prompt string) (string, error) {
	out, err := callWithTimeout(ctx, o.callTimeout, func(ctx context.Context) (string, error) {
		return o.deps.Completer.Complete(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", agenterrors.NewParseError("complete", "completion is empty", nil)
	}
	return out, nil
}

// remember embeds content and appends it to short-term memory. It returns the embedding.
func (o *Orchestrator) remember(ctx context.Context, content string, source memory.SourceType) ([]float32, error) {
	vec, err := callWithTimeout(ctx, o.callTimeout, func(ctx context.Context) ([]float32, error) {
		return o.deps.Embedder.Embed(ctx, content)
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	o.deps.ShortTerm.Append(memory.ShortTermEntry{
		Content:   content,
		Timestamp: o.now(),
		Embedding: vec,
		Source:    source,
	})
	metrics.ShortTermSize.Set(float64(o.deps.ShortTerm.Len()))
	return vec, nil
}

// relatedThoughts returns up to limit short-term entries closest to the thought, skipping the
// entry the thought itself was appended as.
func (o *Orchestrator) relatedThoughts(thought string, vec []float32, limit int) []memory.ShortTermEntry {
	if limit <= 0 || len(vec) == 0 {
		return nil
	}
	var related []memory.ShortTermEntry
	for _, e := range o.deps.ShortTerm.Relevant(vec, limit+1) {
		if e.Content == thought {
			continue
		}
		related = append(related, e)
		if len(related) == limit {
			break
		}
	}
	return related
}

// published records and archives a post. Failures are logged; the post is already out.
func (o *Orchestrator) published(ctx context.Context, logger *slog.Logger, post Post) {
	post.Username = o.username
	post.Timestamp = o.now()
	ctx = context.WithoutCancel(ctx)

	if o.recorder != nil {
		if _, err := callWithTimeout(ctx, o.callTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.recorder.Record(ctx, post)
		}); err != nil {
			logger.Warn("failed to record post", "remote_id", post.RemoteID, "error", err)
		}
	}
	if o.archiver != nil {
		if err := o.archiver.ArchivePost(ctx, post); err != nil {
			logger.Warn("failed to archive post", "remote_id", post.RemoteID, "error", err)
		}
	}
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func errorKind(err error) string {
	if e, ok := agenterrors.As(err); ok {
		return string(e.Kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return ""
}
