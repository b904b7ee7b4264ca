package filter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/source"
)

// LinkPlaceholder replaces every URL before length checks.
const LinkPlaceholder = "[link]"

// DefaultMinLength is the shortest body kept as meaningful content.
const DefaultMinLength = 10

var (
	urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)

	boilerplatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)this action was performed automatically`),
		regexp.MustCompile(`(?i)\bi am a bot\b`),
		regexp.MustCompile(`(?i)\bi'?m a bot\b`),
		regexp.MustCompile(`(?i)please contact the moderators of this subreddit`),
		regexp.MustCompile(`(?i)your (post|submission|comment) has been (automatically )?removed`),
		regexp.MustCompile(`(?i)^\s*\[(deleted|removed)( by user)?\]\s*$`),
	}

	// substrings of account names that mark automation accounts
	botNameMarkers = []string{"bot", "automod"}
)

// Config tunes the noise filter.
type Config struct {
	MinLength int
	// BotAccounts are exact account names rejected in addition to the markers.
	BotAccounts []string
}

// Filter decides whether a corpus record carries meaningful human content.
// It holds no mutable state and is safe for concurrent use.
type Filter struct {
	minLength   int
	botAccounts map[string]struct{}
}

// New creates a Filter.
// Parameters:
//   - cfg: thresholds and extra bot accounts; MinLength <= 0 uses DefaultMinLength.
// Returns:
//   - *Filter: ready-to-use filter.
func New(cfg Config) *Filter {
	minLength := cfg.MinLength
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	accounts := make(map[string]struct{}, len(cfg.BotAccounts))
	for _, name := range cfg.BotAccounts {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			accounts[name] = struct{}{}
		}
	}
	return &Filter{minLength: minLength, botAccounts: accounts}
}

// Keep reports whether the record should enter the corpus.
func (f *Filter) Keep(r domain.CorpusRecord) bool {
	switch r.Type {
	case domain.RecordTypePost:
		return r.Post != nil && f.KeepPost(*r.Post)
	case domain.RecordTypeComment:
		return r.Comment != nil && f.KeepComment(*r.Comment)
	}
	return false
}

// KeepPost applies the noise rules to a post. A post with an empty body is a
// title-only entry and is kept when its title carries text. A deleted or
// removed author alone does not drop a post whose content survived.
func (f *Filter) KeepPost(p domain.Post) bool {
	if f.IsBot(p.Author) {
		return false
	}
	if isBoilerplate(p.Title) || isBoilerplate(p.Body) {
		return false
	}
	if strings.TrimSpace(p.Body) == "" {
		return strings.TrimSpace(stripLinks(p.Title)) != ""
	}
	return f.meaningful(p.Body)
}

// KeepComment applies the noise rules to a comment.
func (f *Filter) KeepComment(c domain.Comment) bool {
	if source.IsDeleted(c.Author, c.Body) {
		return false
	}
	if f.IsBot(c.Author) || isBoilerplate(c.Body) {
		return false
	}
	return f.meaningful(c.Body)
}

// IsBot reports whether the author name looks like an automation account.
func (f *Filter) IsBot(author string) bool {
	name := strings.ToLower(strings.TrimSpace(author))
	if name == "" {
		return false
	}
	if _, ok := f.botAccounts[name]; ok {
		return true
	}
	for _, marker := range botNameMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// meaningful rejects bodies that are empty once links are removed, or
// shorter than the minimum once links are replaced by the placeholder.
func (f *Filter) meaningful(body string) bool {
	substituted := strings.TrimSpace(SubstituteLinks(body))
	if strings.TrimSpace(strings.ReplaceAll(substituted, LinkPlaceholder, "")) == "" {
		return false
	}
	return utf8.RuneCountInString(substituted) >= f.minLength
}

// SubstituteLinks replaces every URL with LinkPlaceholder.
func SubstituteLinks(text string) string {
	return urlPattern.ReplaceAllString(text, LinkPlaceholder)
}

func stripLinks(text string) string {
	return strings.ReplaceAll(SubstituteLinks(text), LinkPlaceholder, "")
}

func isBoilerplate(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range boilerplatePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
