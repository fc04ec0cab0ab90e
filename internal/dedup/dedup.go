// Package dedup implements the per-turn tool-call cache and search loop
// guard. A Cache is created at the start of one RunAgentLoop invocation and
// discarded when it returns, so entries never go stale across turns.
package dedup

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	defaultMaxConsecutiveSearches = 2
	defaultMaxTotalSearches       = 4
	searchToolName                = "search"
)

// stopWords is the fixed closed set dropped when normalizing a search query
// for the fuzzy index.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"for": true, "to": true, "and": true, "or": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "it": true,
	"this": true, "that": true, "with": true, "at": true, "by": true,
}

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// Options configures a Cache's loop-guard thresholds.
type Options struct {
	MaxConsecutiveSearches int
	MaxTotalSearches       int
}

// DefaultOptions returns the spec defaults: 2 consecutive, 4 total.
func DefaultOptions() Options {
	return Options{
		MaxConsecutiveSearches: defaultMaxConsecutiveSearches,
		MaxTotalSearches:       defaultMaxTotalSearches,
	}
}

type fuzzyEntry struct {
	original string
	result   string
}

// Cache is the per-turn dedup and loop-guard state.
type Cache struct {
	opts Options

	exact map[string]string
	fuzzy map[string]fuzzyEntry

	consecutiveSearches int
	totalSearches       int
}

// New returns an empty Cache for one agent-loop turn.
func New(opts Options) *Cache {
	if opts.MaxConsecutiveSearches <= 0 {
		opts.MaxConsecutiveSearches = defaultMaxConsecutiveSearches
	}
	if opts.MaxTotalSearches <= 0 {
		opts.MaxTotalSearches = defaultMaxTotalSearches
	}
	return &Cache{
		opts:  opts,
		exact: make(map[string]string),
		fuzzy: make(map[string]fuzzyEntry),
	}
}

// Key builds the canonical exact-cache key: "<name>:<json(args, sorted keys)>".
func Key(name string, args map[string]any) string {
	return name + ":" + jsonSortedKeys(args)
}

func sortedKeys(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// jsonSortedKeys marshals args with keys in sorted order, matching Python's
// json.dumps(args, sort_keys=True).
func jsonSortedKeys(args map[string]any) string {
	keys := sortedKeys(args)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(args[k])
		sb.Write(kb)
		sb.WriteByte(':')
		sb.Write(vb)
	}
	sb.WriteByte('}')
	return sb.String()
}

// Check considers both the exact cache and, for the search tool, the fuzzy
// index, returning the cached result if this call (or an equivalent query)
// was already made this turn.
func (c *Cache) Check(name string, args map[string]any) (isDuplicate bool, cachedResult string) {
	key := name + ":" + jsonSortedKeys(args)
	if result, ok := c.exact[key]; ok {
		return true, result
	}

	if name == searchToolName {
		if query, ok := args["query"].(string); ok {
			norm := normalizeQuery(query)
			if entry, ok := c.fuzzy[norm]; ok {
				return true, entry.result
			}
		}
	}

	return false, ""
}

// Store records a completed tool call's result in the exact cache and, for
// the search tool, the fuzzy index.
func (c *Cache) Store(name string, args map[string]any, result string) {
	key := name + ":" + jsonSortedKeys(args)
	c.exact[key] = result

	if name == searchToolName {
		if query, ok := args["query"].(string); ok {
			normQuery := normalizeQuery(query)
			c.fuzzy[normQuery] = fuzzyEntry{original: query, result: result}
			c.totalSearches++
		}
	}
}

// RecordToolName updates the consecutive-search counter: it increments on
// the search tool name and resets to 0 on any other tool name.
func (c *Cache) RecordToolName(name string) {
	if name == searchToolName {
		c.consecutiveSearches++
	} else {
		c.consecutiveSearches = 0
	}
}

// SearchLoopDetected reports whether consecutive search calls hit the
// configured threshold.
func (c *Cache) SearchLoopDetected() bool {
	return c.consecutiveSearches >= c.opts.MaxConsecutiveSearches
}

// SearchCapReached reports whether the total number of stored searches this
// turn hit the configured cap. Once reached, the orchestrator should refuse
// further search invocations and synthesize a "Search limit reached" result.
func (c *Cache) SearchCapReached() bool {
	return c.totalSearches >= c.opts.MaxTotalSearches
}

// normalizeQuery applies NFKC normalization, lowercasing, punctuation
// stripping, whitespace tokenization, stop-word removal, dedup, and
// alphabetical sort, producing a canonical form for fuzzy search matching.
func normalizeQuery(query string) string {
	normalized := norm.NFKC.String(query)
	normalized = strings.ToLower(normalized)
	normalized = punctuation.ReplaceAllString(normalized, " ")

	fields := strings.FieldsFunc(normalized, unicode.IsSpace)
	seen := make(map[string]bool, len(fields))
	var tokens []string
	for _, f := range fields {
		if f == "" || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
