package cognition

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/murmur/internal/memory"
	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

func TestPolicy_ShouldPost(t *testing.T) {
	p := DefaultPolicy()
	long := "a thought comfortably over twenty chars"

	assert.False(t, p.ShouldPost(0.6, long), "threshold is exclusive")
	assert.True(t, p.ShouldPost(0.6000001, long))
	assert.False(t, p.ShouldPost(0.9, strings.Repeat("x", 20)), "length is exclusive")
	assert.True(t, p.ShouldPost(0.9, strings.Repeat("x", 21)))
	assert.False(t, p.ShouldPost(0.9, strings.Repeat("é", 20)), "length counts characters")
}

func TestPolicy_ShouldPersist(t *testing.T) {
	p := DefaultPolicy()
	assert.False(t, p.ShouldPersist(0.6))
	assert.True(t, p.ShouldPersist(0.61))

	p.StoreThreshold = 0.3
	assert.True(t, p.ShouldPersist(0.31))
}

func TestPolicy_ShouldRespond(t *testing.T) {
	p := DefaultPolicy()
	p.Handle = "@Murmur"

	assert.True(t, p.ShouldRespond(Interaction{Text: "hi @murmur"}))
	assert.True(t, p.ShouldRespond(Interaction{Text: "HI @MURMUR!"}))
	assert.True(t, p.ShouldRespond(Interaction{Text: "no mention", InReplyToID: "1"}))
	assert.False(t, p.ShouldRespond(Interaction{Text: "murmur without the at sign"}))

	p.Handle = ""
	assert.False(t, p.ShouldRespond(Interaction{Text: "@murmur"}))
	assert.True(t, p.ShouldRespond(Interaction{Text: "@murmur", InReplyToID: "2"}))
}

func TestCleanPost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Tweet: hello", "hello"},
		{"tweet:hello", "hello"},
		{"  POST:  \"quoted take\"  ", "quoted take"},
		{"no label here", "no label here"},
		{"a tweet: mid-sentence stays", "a tweet: mid-sentence stays"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanPost(tt.in), tt.in)
	}
}

func TestValidatePost(t *testing.T) {
	require.NoError(t, ValidatePost(strings.Repeat("a", MaxPostLength)))
	require.NoError(t, ValidatePost(strings.Repeat("ü", MaxPostLength)))

	err := ValidatePost(strings.Repeat("a", MaxPostLength+1))
	assert.True(t, agenterrors.IsKind(err, agenterrors.KindData))

	err = ValidatePost("")
	assert.True(t, agenterrors.IsKind(err, agenterrors.KindData))
}

func TestWalletAddresses(t *testing.T) {
	a := "0x52908400098527886E0F7030069857D2E4169EE7"
	b := "0xde709f2102306220921060314715629080e2fb77"
	text := "tip " + a + " or " + b + ", again " + strings.ToLower(a) + " but not 0x1234"

	assert.Equal(t, []string{a, b}, WalletAddresses(text))
	assert.Nil(t, WalletAddresses("nothing to see"))
}

func TestJitteredInterval(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	base := 30 * time.Minute
	for i := 0; i < 1000; i++ {
		d := JitteredInterval(base, DefaultJitter, rnd)
		require.GreaterOrEqual(t, d, 24*time.Minute)
		require.LessOrEqual(t, d, 36*time.Minute)
	}
	assert.Equal(t, base, JitteredInterval(base, 0, rnd))
}

func TestActiveHours(t *testing.T) {
	hours := ActiveHours{Start: 8, End: 3, Location: time.UTC}
	at := func(h, m int) time.Time { return time.Date(2026, 5, 1, h, m, 0, 0, time.UTC) }

	assert.True(t, hours.Contains(at(8, 0)))
	assert.True(t, hours.Contains(at(23, 59)))
	assert.True(t, hours.Contains(at(0, 30)))
	assert.True(t, hours.Contains(at(2, 59)))
	assert.False(t, hours.Contains(at(3, 0)))
	assert.False(t, hours.Contains(at(7, 59)))

	day := ActiveHours{Start: 9, End: 17, Location: time.UTC}
	assert.True(t, day.Contains(at(12, 0)))
	assert.False(t, day.Contains(at(18, 0)))

	assert.True(t, ActiveHours{Start: 5, End: 5}.Contains(at(4, 0)))
}

func TestPrompts(t *testing.T) {
	tc := ThoughtContext{
		RecentPosts:     []Post{{Content: "A"}, {Content: "B"}},
		ExternalContext: []string{"@alice: C"},
		ShortTermSummary: []memory.ShortTermEntry{
			{Content: "earlier idea", Source: memory.SourceInternalThought},
		},
	}

	thought := ThoughtPrompt(tc)
	assert.Contains(t, thought, "Recent posts:\nA\nB\n")
	assert.Contains(t, thought, "External context:\n@alice: C\n")
	assert.Contains(t, thought, "- (internal_thought) earlier idea")

	post := PostPrompt(PostContext{Thought: "big idea", Context: tc})
	assert.Contains(t, post, "Current thought:\nbig idea")
	assert.Contains(t, post, "Recent posts:\nA\nB\n")
	assert.Contains(t, post, noMemories)
	assert.NotContains(t, post, "Related thoughts")

	post = PostPrompt(PostContext{
		Thought:         "big idea",
		Context:         tc,
		Memories:        []memory.Memory{{Content: "old", Significance: 0.7}},
		RelatedThoughts: []memory.ShortTermEntry{{Content: "similar idea", Source: memory.SourceInternalThought}},
	})
	assert.Contains(t, post, "[Memory: 0.70 significance] old")
	assert.Contains(t, post, "Related thoughts:\n- (internal_thought) similar idea\n")

	reply := ResponsePrompt(Interaction{AuthorID: "7", Text: "yo"}, nil)
	assert.Contains(t, reply, "Message from @7:\nyo")
	assert.NotContains(t, reply, "Recent posts")

	empty := ThoughtPrompt(ThoughtContext{})
	assert.Contains(t, empty, "Recent posts:\n(none)")
}
