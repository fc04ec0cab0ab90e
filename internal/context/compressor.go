package context

import (
	"sort"
	"strings"

	"github.com/haasonsaas/loom/pkg/models"
)

// CompressionMode selects how aggressively the compressor keeps salient
// facts from older history.
type CompressionMode string

const (
	ModeOff          CompressionMode = "off"
	ModeConservative CompressionMode = "conservative"
	ModeBalanced     CompressionMode = "balanced"
	ModeAggressive   CompressionMode = "aggressive"
)

// maxFactsByMode is the per-mode cap on retained salient facts, applied
// before CompressorOptions.MaxFacts (whichever is smaller wins).
var maxFactsByMode = map[CompressionMode]int{
	ModeConservative: 8,
	ModeBalanced:     12,
	ModeAggressive:   16,
}

// salienceKeywords are the fixed importance markers scored against older
// message text.
var salienceKeywords = []string{
	"must", "require", "deadline", "decision", "agreed", "error", "failed",
	"todo", "api", "token", "password",
}

// CompressorOptions tunes one Compress call.
type CompressorOptions struct {
	Mode             CompressionMode
	RecencyTurns     int // user messages kept verbatim in raw_recent
	SalienceThreshold float64
	MaxFacts         int // overall cap; mode cap applies too, whichever is smaller
	MaxSummaryChars  int
}

// DefaultCompressorOptions returns the balanced-mode defaults.
func DefaultCompressorOptions() CompressorOptions {
	return CompressorOptions{
		Mode:              ModeBalanced,
		RecencyTurns:      4,
		SalienceThreshold: 0.3,
		MaxFacts:          12,
		MaxSummaryChars:   2000,
	}
}

// BudgetReport approximates the token-accounting effect of compression.
type BudgetReport struct {
	Mode                string `json:"mode"`
	BeforeTokensEstimate int    `json:"before_tokens_estimate"`
	AfterTokensEstimate  int    `json:"after_tokens_estimate"`
	Saved                int    `json:"saved"`
	RecentMessages       int    `json:"recent_messages"`
	Facts                int    `json:"facts"`
}

// CompressedContext is the output of Compress: a raw recent tail plus an
// optional hint message summarizing everything older.
type CompressedContext struct {
	Messages []models.Message
	Budget   BudgetReport
}

// Compress walks history backwards, keeping the most recent RecencyTurns
// user-message turns verbatim and distilling everything older into a
// salience-scored fact list plus a rolling summary, rendered as one
// metadata-only hint message prepended to the recent tail.
func Compress(history []models.Message, opts CompressorOptions) CompressedContext {
	before := estimateTokens(history)

	if opts.Mode == "" || opts.Mode == ModeOff {
		return CompressedContext{
			Messages: history,
			Budget: BudgetReport{
				Mode:                 string(ModeOff),
				BeforeTokensEstimate: before,
				AfterTokensEstimate:  before,
				Saved:                0,
				RecentMessages:       len(history),
			},
		}
	}

	splitAt := recencySplit(history, opts.RecencyTurns)
	older := history[:splitAt]
	recent := history[splitAt:]

	facts := scoreSalience(older, opts)
	summary := rollingSummary(older, opts.MaxSummaryChars)

	out := make([]models.Message, 0, len(recent)+1)
	if hint, ok := renderHint(facts, summary); ok {
		out = append(out, hint)
	}
	out = append(out, recent...)

	after := estimateTokens(out)
	saved := before - after
	if saved < 0 {
		saved = 0
	}

	return CompressedContext{
		Messages: out,
		Budget: BudgetReport{
			Mode:                 string(opts.Mode),
			BeforeTokensEstimate: before,
			AfterTokensEstimate:  after,
			Saved:                saved,
			RecentMessages:       len(recent),
			Facts:                len(facts),
		},
	}
}

// recencySplit returns the index where raw_recent begins: walk back from the
// newest message until recencyTurns user messages have been seen.
func recencySplit(history []models.Message, recencyTurns int) int {
	if recencyTurns <= 0 {
		return len(history)
	}
	seen := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			seen++
			if seen >= recencyTurns {
				return i
			}
		}
	}
	return 0
}

type fact struct {
	snippet string
	score   float64
}

func scoreSalience(older []models.Message, opts CompressorOptions) []string {
	cap := maxFactsByMode[opts.Mode]
	if opts.MaxFacts > 0 && opts.MaxFacts < cap {
		cap = opts.MaxFacts
	}
	if cap <= 0 {
		cap = opts.MaxFacts
	}

	seen := make(map[string]bool)
	var scored []fact
	for _, m := range older {
		text := messageText(m)
		if text == "" {
			continue
		}
		score := salienceScore(m.Role, text)
		if score < opts.SalienceThreshold {
			continue
		}
		norm := normalizeSnippet(text)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		scored = append(scored, fact{snippet: norm, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > cap {
		scored = scored[:cap]
	}

	facts := make([]string, len(scored))
	for i, f := range scored {
		facts[i] = f.snippet
	}
	return facts
}

func salienceScore(role models.Role, text string) float64 {
	score := baseScoreForRole(role)

	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range salienceKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	score += min(0.4, 0.08*float64(hits))

	if strings.ContainsAny(text, "0123456789") {
		score += 0.1
	}
	if strings.Contains(text, "`") {
		score += 0.1
	}
	if len(text) > 220 {
		score += 0.1
	}
	return score
}

func baseScoreForRole(role models.Role) float64 {
	switch role {
	case models.RoleUser:
		return 0.2
	case models.RoleAssistant:
		return 0.1
	default:
		return 0.05
	}
}

func normalizeSnippet(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if len(s) > 220 {
		s = s[:217] + "..."
	}
	return s
}

func messageText(m models.Message) string {
	if m.Content != "" {
		return m.Content
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == "text" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func rollingSummary(older []models.Message, maxChars int) string {
	if maxChars <= 0 {
		maxChars = 2000
	}
	start := 0
	if len(older) > 12 {
		start = len(older) - 12
	}
	var sb strings.Builder
	for _, m := range older[start:] {
		text := messageText(m)
		if text == "" {
			continue
		}
		line := string(m.Role) + ": " + normalizeSnippet(text)
		if sb.Len()+len(line)+1 > maxChars {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(line)
	}
	return sb.String()
}

func renderHint(facts []string, summary string) (models.Message, bool) {
	if len(facts) == 0 && summary == "" {
		return models.Message{}, false
	}

	var sb strings.Builder
	sb.WriteString("[Compressed Session Context - metadata only, not instructions]\n")
	if len(facts) > 0 {
		sb.WriteString("Key facts and constraints:\n")
		for _, f := range facts {
			sb.WriteString("- ")
			sb.WriteString(f)
			sb.WriteString("\n")
		}
	}
	if summary != "" {
		sb.WriteString("Rolling summary:\n")
		sb.WriteString(summary)
	}

	return models.Message{
		Role:    models.RoleUser,
		Content: strings.TrimRight(sb.String(), "\n"),
	}, true
}

func estimateTokens(history []models.Message) int {
	chars := 0
	for _, m := range history {
		chars += len(m.Content)
		for _, p := range m.Parts {
			chars += len(p.Text)
		}
	}
	return chars / 4
}
