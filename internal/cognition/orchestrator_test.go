package cognition_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/murmur/internal/cognition"
	"github.com/blueberrycongee/murmur/internal/memory"
	"github.com/blueberrycongee/murmur/internal/memory/inmem"
	"github.com/blueberrycongee/murmur/internal/resilience"
	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

const (
	dims        = 64
	thought     = "noteworthy realization about C"
	postMatch   = "generate a post"
	thinkMatch  = "internal monologue"
	replyMatch  = "Someone is talking to you"
	handle      = "murmur"
	walletInBio = "0x52908400098527886E0F7030069857D2E4169EE7"
)

type fixedScorer float64

func (f fixedScorer) Score(ctx context.Context, content string) (float64, memory.ScoringMetrics, error) {
	return float64(f), memory.ScoringMetrics{}, nil
}

type harness struct {
	orch      *cognition.Orchestrator
	model     *inmem.ScriptedModel
	repo      *inmem.Repository
	log       *inmem.PostLog
	shortTerm *memory.ShortTermMemory
	longTerm  *memory.LongTermStore
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	rating  int
	scorer  memory.Scorer
	sink    cognition.ActionSink
	rules   []inmem.Rule
	options []cognition.Option
	wrap    func(cognition.Completer) cognition.Completer
}

func withScorer(s memory.Scorer) harnessOption {
	return func(c *harnessConfig) { c.scorer = s }
}

func withSink(s cognition.ActionSink) harnessOption {
	return func(c *harnessConfig) { c.sink = s }
}

func withRules(rules ...inmem.Rule) harnessOption {
	return func(c *harnessConfig) { c.rules = rules }
}

func withCompleter(wrap func(cognition.Completer) cognition.Completer) harnessOption {
	return func(c *harnessConfig) { c.wrap = wrap }
}

func withOptions(opts ...cognition.Option) harnessOption {
	return func(c *harnessConfig) { c.options = opts }
}

// newHarness wires the real memory stack over in-memory collaborators: recent posts A and B,
// external context C, a model that thinks about C and rates everything with rating.
func newHarness(t *testing.T, rating int, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{
		rating: rating,
		rules: []inmem.Rule{
			{Match: postMatch, Completion: "Tweet: C changes everything"},
			{Match: thinkMatch, Completion: thought},
			{Match: replyMatch, Completion: "Reply: glad you asked"},
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()
	log := inmem.NewPostLog(handle)
	base := time.Now().Add(-time.Hour)
	require.NoError(t, log.Record(ctx, cognition.Post{Content: "A", Timestamp: base}))
	require.NoError(t, log.Record(ctx, cognition.Post{Content: "B", Timestamp: base.Add(time.Minute)}))
	log.SetExternalContext("C")

	model := inmem.NewScriptedModel("", cfg.rating, cfg.rules...)
	embedder := inmem.NewHashEmbedder(dims)
	scorer := cfg.scorer
	if scorer == nil {
		scorer = memory.NewSignificanceScorer(model, memory.DefaultScoringConfig())
	}

	repo := inmem.NewRepository()
	ltCfg := memory.DefaultLongTermConfig()
	ltCfg.Dimension = dims
	ltCfg.Retry = resilience.RetryConfig{Attempts: 1}
	longTerm := memory.NewLongTermStore(repo, embedder, scorer, ltCfg)
	shortTerm := memory.NewShortTermMemory(10)

	sink := cfg.sink
	if sink == nil {
		sink = log
	}

	policy := cognition.DefaultPolicy()
	policy.Handle = handle
	options := append([]cognition.Option{cognition.WithRecorder(log)}, cfg.options...)
	var completer cognition.Completer = model
	if cfg.wrap != nil {
		completer = cfg.wrap(model)
	}
	orch, err := cognition.NewOrchestrator(cognition.Dependencies{
		Completer: completer,
		Embedder:  embedder,
		ShortTerm: shortTerm,
		Scorer:    scorer,
		LongTerm:  longTerm,
		Context:   log,
		Sink:      sink,
	}, policy, options...)
	require.NoError(t, err)

	return &harness{orch: orch, model: model, repo: repo, log: log, shortTerm: shortTerm, longTerm: longTerm}
}

func TestRunCycle_EndToEnd(t *testing.T) {
	h := newHarness(t, 8)
	ctx := context.Background()

	res, err := h.orch.RunCycle(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, res.CycleID)
	assert.Equal(t, thought, res.Thought)
	assert.InDelta(t, 0.62, res.Significance, 1e-9)
	assert.InDelta(t, 1.0, res.Metrics.Novelty, 1e-9)
	assert.Zero(t, res.Metrics.EmotionalImpact)

	require.True(t, res.Stored.Stored(), "store err: %v", res.Stored.Err)
	assert.Equal(t, 1, h.repo.Len())
	require.Len(t, res.Memories, 1)
	assert.Equal(t, thought, res.Memories[0].Content)

	assert.True(t, res.Acted)
	assert.Equal(t, "C changes everything", res.Post)
	assert.Equal(t, "local-1", res.RemoteID)

	entries := h.shortTerm.Recent(10)
	require.Len(t, entries, 1)
	assert.Equal(t, memory.SourceInternalThought, entries[0].Source)
	assert.Len(t, entries[0].Embedding, dims)

	posts, err := h.log.RecentPosts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "C changes everything", posts[0].Content)
	assert.Equal(t, handle, posts[0].Username)
	assert.Equal(t, cognition.PostKindPost, posts[0].Kind)

	prompts := h.model.Prompts()
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0], "A")
	assert.Contains(t, prompts[0], "B")
	assert.Contains(t, prompts[0], "External context:\nC")

	var postPrompt string
	for _, p := range prompts {
		if strings.Contains(p, postMatch) {
			postPrompt = p
		}
	}
	require.NotEmpty(t, postPrompt)
	assert.Contains(t, postPrompt, "[Memory: 0.62 significance] "+thought)
}

func TestRunCycle_PostPromptCarriesRelatedThoughts(t *testing.T) {
	h := newHarness(t, 8)
	ctx := context.Background()
	embedder := inmem.NewHashEmbedder(dims)
	for _, content := range []string{"weather report for tuesday", "an earlier realization about C"} {
		vec, err := embedder.Embed(ctx, content)
		require.NoError(t, err)
		h.shortTerm.Append(memory.ShortTermEntry{Content: content, Embedding: vec, Source: memory.SourceInternalThought, Timestamp: time.Now()})
	}
	p := h.orch.Policy()
	p.RelatedThoughtsLimit = 1
	h.orch.SetPolicy(p)

	res, err := h.orch.RunCycle(ctx)
	require.NoError(t, err)
	require.True(t, res.Acted)

	var postPrompt string
	for _, prompt := range h.model.Prompts() {
		if strings.Contains(prompt, postMatch) {
			postPrompt = prompt
		}
	}
	require.NotEmpty(t, postPrompt)
	assert.Contains(t, postPrompt, "Related thoughts:\n- (internal_thought) an earlier realization about C\n")
	assert.NotContains(t, postPrompt, "weather report")
	assert.NotContains(t, postPrompt, "- (internal_thought) "+thought)
}

func TestRunCycle_GateBoundary(t *testing.T) {
	tests := []struct {
		name        string
		score       float64
		wantStored  bool
		wantActed   bool
		wantOutcome memory.Outcome
	}{
		{"exactly at threshold", 0.6, false, false, memory.OutcomeSkipped},
		{"just above threshold", 0.61, true, true, memory.OutcomeStored},
		{"well below threshold", 0.2, false, false, memory.OutcomeSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 8, withScorer(fixedScorer(tt.score)))

			res, err := h.orch.RunCycle(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, res.Stored.Outcome)
			assert.Equal(t, tt.wantActed, res.Acted)
			if tt.wantStored {
				assert.Equal(t, 1, h.repo.Len())
			} else {
				assert.Equal(t, 0, h.repo.Len())
			}
			if !tt.wantActed {
				assert.Empty(t, res.Post)
			}
		})
	}
}

func TestRunCycle_ShortThoughtIsNotPosted(t *testing.T) {
	h := newHarness(t, 8,
		withScorer(fixedScorer(0.9)),
		withRules(inmem.Rule{Match: thinkMatch, Completion: "twenty chars exactly"}),
	)

	res, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Stored.Stored())
	assert.False(t, res.Acted)
}

func TestRunCycle_OverlongPostIsRejected(t *testing.T) {
	h := newHarness(t, 8, withRules(
		inmem.Rule{Match: postMatch, Completion: strings.Repeat("x", cognition.MaxPostLength+1)},
		inmem.Rule{Match: thinkMatch, Completion: thought},
	))

	res, err := h.orch.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, agenterrors.IsKind(err, agenterrors.KindData))
	assert.False(t, res.Acted)

	posts, _ := h.log.RecentPosts(context.Background(), 10)
	assert.Len(t, posts, 2, "nothing may be published")
}

type failingSink struct{ err error }

func (s failingSink) Publish(ctx context.Context, content string) (string, error) {
	return "", s.err
}

func (s failingSink) Reply(ctx context.Context, content, targetID string) (string, error) {
	return "", s.err
}

func TestRunCycle_PublishFailure(t *testing.T) {
	publishErr := agenterrors.NewPublishError("publish", agenterrors.PublishRateLimited, 429, "slow down", nil)
	h := newHarness(t, 8, withSink(failingSink{err: publishErr}))

	res, err := h.orch.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, publishErr))
	assert.Contains(t, err.Error(), cognition.StageAct)
	assert.False(t, res.Acted)
	assert.Equal(t, "C changes everything", res.Post)
	assert.True(t, res.Stored.Stored(), "the memory survives a failed publish")
}

type erroringCompleter struct{ err error }

func (c erroringCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return "", c.err
}

func TestRunCycle_ThinkFailureAbortsCycle(t *testing.T) {
	log := inmem.NewPostLog(handle)
	embedder := inmem.NewHashEmbedder(dims)
	repo := inmem.NewRepository()
	cfg := memory.DefaultLongTermConfig()
	cfg.Dimension = dims
	longTerm := memory.NewLongTermStore(repo, embedder, fixedScorer(0.9), cfg)
	providerErr := agenterrors.NewProviderError("complete", "upstream down", 503, nil)

	orch, err := cognition.NewOrchestrator(cognition.Dependencies{
		Completer: erroringCompleter{err: providerErr},
		Embedder:  embedder,
		ShortTerm: memory.NewShortTermMemory(5),
		Scorer:    fixedScorer(0.9),
		LongTerm:  longTerm,
		Context:   log,
		Sink:      log,
	}, cognition.DefaultPolicy())
	require.NoError(t, err)

	res, err := orch.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, agenterrors.IsKind(err, agenterrors.KindProvider))
	assert.Contains(t, err.Error(), cognition.StageThink)
	assert.Empty(t, res.Thought)
	assert.Equal(t, 0, repo.Len())
}

func TestRunCycle_DetectsWalletAddresses(t *testing.T) {
	h := newHarness(t, 8, withRules(
		inmem.Rule{Match: postMatch, Completion: "send thoughts to " + walletInBio},
		inmem.Rule{Match: thinkMatch, Completion: thought},
	))

	res, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{walletInBio}, res.Wallets)
}

type recordingArchiver struct {
	posts []cognition.Post
}

func (a *recordingArchiver) ArchivePost(ctx context.Context, post cognition.Post) error {
	a.posts = append(a.posts, post)
	return nil
}

func (a *recordingArchiver) ArchiveConsolidation(ctx context.Context, report memory.ConsolidationReport) error {
	return nil
}

func TestRunCycle_ArchivesPublishedPost(t *testing.T) {
	archiver := &recordingArchiver{}
	h := newHarness(t, 8, withOptions(cognition.WithArchiver(archiver)))

	_, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, archiver.posts, 1)
	assert.Equal(t, "local-1", archiver.posts[0].RemoteID)
}

func TestSetPolicy_AppliesToNextCycle(t *testing.T) {
	h := newHarness(t, 8)
	p := h.orch.Policy()
	p.PostThreshold = 0.9
	h.orch.SetPolicy(p)

	res, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Stored.Stored())
	assert.False(t, res.Acted)
}

func TestSetPolicy_LoweredStoreThresholdPersists(t *testing.T) {
	h := newHarness(t, 8, withScorer(fixedScorer(0.5)))

	res, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Stored.Stored())
	assert.Equal(t, 0, h.repo.Len())

	p := h.orch.Policy()
	p.StoreThreshold = 0.4
	h.orch.SetPolicy(p)

	res, err = h.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Stored.Stored(), "outcome %s: %v", res.Stored.Outcome, res.Stored.Err)
	assert.Equal(t, 1, h.repo.Len())
}

// cancelOnPrompt cancels a context once a prompt containing match has been answered.
type cancelOnPrompt struct {
	cognition.Completer
	match  string
	cancel context.CancelFunc
}

func (c cancelOnPrompt) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := c.Completer.Complete(ctx, prompt)
	if strings.Contains(prompt, c.match) {
		c.cancel()
	}
	return out, err
}

func TestRunCycle_ShutdownStopsBeforeNextStage(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, 8, withCompleter(func(inner cognition.Completer) cognition.Completer {
		return cancelOnPrompt{Completer: inner, match: thinkMatch, cancel: cancel}
	}))

	res, err := h.orch.RunCycle(cognition.Graceful(parent))
	require.Error(t, err)
	assert.ErrorIs(t, err, cognition.ErrInterrupted)
	assert.Equal(t, thought, res.Thought, "the running stage completes")
	assert.Equal(t, 1, h.shortTerm.Len())
	assert.False(t, res.Acted)
	assert.Equal(t, 0, h.repo.Len())

	posts, err := h.log.RecentPosts(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, posts, 2, "nothing is published after shutdown")
}

func TestRunCycle_GracefulContextRunsToCompletion(t *testing.T) {
	h := newHarness(t, 8)

	res, err := h.orch.RunCycle(cognition.Graceful(context.Background()))
	require.NoError(t, err)
	assert.True(t, res.Acted)
}

func TestHandleInteraction_ShutdownSkipsReply(t *testing.T) {
	h := newHarness(t, 8)
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.orch.HandleInteraction(cognition.Graceful(parent), cognition.Interaction{
		ID:   "42",
		Text: "@" + handle + " what do you think?",
	})
	assert.ErrorIs(t, err, cognition.ErrInterrupted)
	assert.False(t, res.Responded)
	assert.Equal(t, 1, h.shortTerm.Len(), "the message is still remembered")
}

func TestHandleInteraction(t *testing.T) {
	tests := []struct {
		name          string
		interaction   cognition.Interaction
		wantResponded bool
	}{
		{
			name:          "mention in different case",
			interaction:   cognition.Interaction{ID: "m1", Author: "alice", Text: "hey @MurMur what's new?"},
			wantResponded: true,
		},
		{
			name:          "reply to agent post",
			interaction:   cognition.Interaction{ID: "m2", Author: "bob", Text: "agreed", InReplyToID: "local-9"},
			wantResponded: true,
		},
		{
			name:          "unrelated chatter",
			interaction:   cognition.Interaction{ID: "m3", Author: "carol", Text: "talking about @someoneelse"},
			wantResponded: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 8)

			res, err := h.orch.HandleInteraction(context.Background(), tt.interaction)
			require.NoError(t, err)
			assert.Equal(t, tt.wantResponded, res.Responded)

			entries := h.shortTerm.Recent(1)
			require.Len(t, entries, 1)
			assert.Equal(t, memory.SourceInteraction, entries[0].Source)
			assert.Equal(t, tt.interaction.Text, entries[0].Content)

			if tt.wantResponded {
				assert.Equal(t, "glad you asked", res.Response)
				assert.NotEmpty(t, res.RemoteID)
				posts, _ := h.log.RecentPosts(context.Background(), 1)
				require.Len(t, posts, 1)
				assert.Equal(t, cognition.PostKindReply, posts[0].Kind)
			} else {
				assert.Empty(t, res.Response)
			}
		})
	}
}

func TestHandleInteraction_UsesOnlyInteractionContext(t *testing.T) {
	h := newHarness(t, 8)
	ctx := context.Background()
	for _, content := range []string{"alpha memory one", "alpha memory two", "alpha memory three", "alpha memory four"} {
		require.True(t, h.longTerm.StoreScored(ctx, content, 0.9).Stored())
	}

	res, err := h.orch.HandleInteraction(ctx, cognition.Interaction{ID: "m1", Author: "dave", Text: "@murmur alpha memory?"})
	require.NoError(t, err)
	assert.Len(t, res.Memories, 3)

	prompts := h.model.Prompts()
	last := prompts[len(prompts)-1]
	assert.Contains(t, last, "@murmur alpha memory?")
	assert.NotContains(t, last, "Recent posts:")
	assert.NotContains(t, last, "External context:")
}

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	_, err := cognition.NewOrchestrator(cognition.Dependencies{}, cognition.DefaultPolicy())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completer")
	assert.Contains(t, err.Error(), "action sink")
}
