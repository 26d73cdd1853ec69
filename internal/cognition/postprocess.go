package cognition

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

// MaxPostLength is the longest post accepted, in characters.
const MaxPostLength = 280

var (
	postLabel     = regexp.MustCompile(`(?i)^\s*(tweet|post|reply)\s*:\s*`)
	walletAddress = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
)

// CleanPost strips a leading "Tweet:" style label, surrounding quotes and whitespace.
func CleanPost(content string) string {
	content = postLabel.ReplaceAllString(strings.TrimSpace(content), "")
	content = strings.TrimSpace(content)
	if len(content) >= 2 && content[0] == '"' && content[len(content)-1] == '"' {
		content = strings.TrimSpace(content[1 : len(content)-1])
	}
	return content
}

// ValidatePost rejects empty posts and posts longer than MaxPostLength characters.
func ValidatePost(content string) error {
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return agenterrors.NewDataError("validate_post", "generated post is empty")
	}
	if n > MaxPostLength {
		return agenterrors.NewDataError("validate_post", fmt.Sprintf("generated post has %d characters, limit is %d", n, MaxPostLength))
	}
	return nil
}

// WalletAddresses returns the distinct EVM addresses mentioned in text, in order of appearance.
func WalletAddresses(text string) []string {
	matches := walletAddress.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		key := strings.ToLower(m)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}
