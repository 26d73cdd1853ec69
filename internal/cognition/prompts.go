package cognition

import (
	"fmt"
	"strings"

	"github.com/blueberrycongee/murmur/internal/memory"
)

const noMemories = "No relevant memories available."

// ThoughtPrompt builds the prompt that turns gathered context into an internal monologue.
func ThoughtPrompt(tc ThoughtContext) string {
	var b strings.Builder
	b.WriteString("Analyze the following recent posts and external context.\n\n")
	b.WriteString("Based on this information, generate a concise internal monologue about the current posts ")
	b.WriteString("and their relevance to update your priors.\n")
	b.WriteString("Focus on key themes, trends and potential areas of interest, most importantly from the external context.\n")
	b.WriteString("Stick to your persona. It does not have to be legible to anyone but you.\n\n")

	b.WriteString("Recent posts:\n")
	writeLines(&b, postContents(tc.RecentPosts))
	b.WriteString("\nExternal context:\n")
	writeLines(&b, tc.ExternalContext)
	if len(tc.ShortTermSummary) > 0 {
		b.WriteString("\nRecent thoughts:\n")
		for _, e := range tc.ShortTermSummary {
			fmt.Fprintf(&b, "- (%s) %s\n", e.Source, e.Content)
		}
	}
	return b.String()
}

// PostPrompt builds the prompt that turns a thought into a post.
func PostPrompt(pc PostContext) string {
	var b strings.Builder
	b.WriteString("Based on the following context, generate a post that reflects your current thoughts and personality.\n\n")
	fmt.Fprintf(&b, "Current thought:\n%s\n\n", pc.Thought)
	b.WriteString("Recent posts:\n")
	writeLines(&b, postContents(pc.Context.RecentPosts))
	b.WriteString("\nExternal context:\n")
	writeLines(&b, pc.Context.ExternalContext)
	if len(pc.RelatedThoughts) > 0 {
		b.WriteString("\nRelated thoughts:\n")
		for _, e := range pc.RelatedThoughts {
			fmt.Fprintf(&b, "- (%s) %s\n", e.Source, e.Content)
		}
	}
	b.WriteString("\nRelevant memories:\n")
	b.WriteString(FormatMemories(pc.Memories))
	b.WriteString("\n\nGenerate a single post under 280 characters that is authentic to your personality ")
	b.WriteString("and responds to the current context. Be creative and don't be afraid to be weird.\n")
	return b.String()
}

// ResponsePrompt builds the prompt for answering an interaction. Only the interaction itself
// and the recalled memories are used as context.
func ResponsePrompt(in Interaction, memories []memory.Memory) string {
	author := in.Author
	if author == "" {
		author = in.AuthorID
	}
	var b strings.Builder
	b.WriteString("Someone is talking to you. Write a reply in your own voice.\n\n")
	fmt.Fprintf(&b, "Message from @%s:\n%s\n\n", author, in.Text)
	b.WriteString("Relevant memories:\n")
	b.WriteString(FormatMemories(memories))
	b.WriteString("\n\nReply with a single post under 280 characters.\n")
	return b.String()
}

// FormatMemories renders memories one per line, or a placeholder when there are none.
func FormatMemories(memories []memory.Memory) string {
	if len(memories) == 0 {
		return noMemories
	}
	lines := make([]string, len(memories))
	for i, m := range memories {
		lines[i] = m.FormatForPrompt()
	}
	return strings.Join(lines, "\n")
}

func postContents(posts []Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Content
	}
	return out
}

func writeLines(b *strings.Builder, lines []string) {
	if len(lines) == 0 {
		b.WriteString("(none)\n")
		return
	}
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
}
