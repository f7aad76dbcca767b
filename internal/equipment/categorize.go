package equipment

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Source records how an item was categorized.
type Source string

// Categorization sources.
const (
	SourceKeyword Source = "keyword"
	SourceLLM     Source = "llm"
	SourceDefault Source = "default"
)

// Completer answers a prompt with plain text. *synthesis.Synthesizer
// implements it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Result is the category assigned to one equipment item.
type Result struct {
	Item     string   `json:"item"`
	Category Category `json:"category"`
	Source   Source   `json:"source"`
}

// Categorizer assigns equipment items to categories. The completer is
// optional; without it unmatched items fall back to Other.
type Categorizer struct {
	llm Completer
}

// NewCategorizer creates a Categorizer.
func NewCategorizer(llm Completer) *Categorizer {
	return &Categorizer{llm: llm}
}

// Categorize returns the category of a single item.
func (c *Categorizer) Categorize(ctx context.Context, item string) Result {
	return c.CategorizeAll(ctx, []string{item})[0]
}

// CategorizeAll categorizes items in order. Keyword rules run first; the
// remaining items go to the language model in one prompt. Every result
// carries a category from the closed set.
func (c *Categorizer) CategorizeAll(ctx context.Context, items []string) []Result {
	results := make([]Result, len(items))
	var pending []int
	for i, item := range items {
		results[i] = Result{Item: item, Category: Other, Source: SourceDefault}
		if strings.TrimSpace(item) == "" {
			continue
		}
		if cat, ok := matchRule(item); ok {
			results[i].Category, results[i].Source = cat, SourceKeyword
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 || c.llm == nil {
		return results
	}

	batch := make([]string, len(pending))
	for j, i := range pending {
		batch[j] = items[i]
	}
	text, err := c.llm.Complete(ctx, buildPrompt(batch))
	if err != nil {
		zap.L().Warn("equipment categorization fell back to default", zap.Int("items", len(batch)), zap.Error(err))
		return results
	}
	for j, cat := range parseReply(text, len(batch)) {
		if cat != "" {
			results[pending[j]].Category, results[pending[j]].Source = cat, SourceLLM
		}
	}
	return results
}

func buildPrompt(items []string) string {
	var b strings.Builder
	b.WriteString("Assign each vehicle equipment item to exactly one category.\n")
	b.WriteString("Allowed categories: ")
	for i, cat := range all {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(cat))
	}
	b.WriteString(".\nUse other when no category fits. Items may be German.\n\nItems:\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(item))
	}
	b.WriteString("\nAnswer with one line per item in the form \"<number>: <category>\" and nothing else.")
	return b.String()
}

var replyLine = regexp.MustCompile(`^\s*(\d+)\s*[.:)\-]\s*(.+?)\s*$`)

// parseReply maps "n: category" lines to categories by item index. Entries
// the model skipped or answered outside the set stay empty.
func parseReply(text string, n int) []Category {
	out := make([]Category, n)
	for _, line := range strings.Split(text, "\n") {
		m := replyLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > n || out[idx-1] != "" {
			continue
		}
		answer := m[2]
		if k := strings.LastIndex(answer, ":"); k >= 0 {
			answer = answer[k+1:]
		}
		if cat, ok := Lookup(answer); ok {
			out[idx-1] = cat
		}
	}
	return out
}
