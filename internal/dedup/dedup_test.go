package dedup

import "testing"

func TestCache_Check_ExactDuplicate(t *testing.T) {
	c := New(DefaultOptions())
	args := map[string]any{"path": "/tmp/a.txt"}

	if dup, _ := c.Check("read_file", args); dup {
		t.Fatal("expected no duplicate before Store")
	}
	c.Store("read_file", args, "file contents")

	dup, result := c.Check("read_file", args)
	if !dup || result != "file contents" {
		t.Errorf("Check() = (%v, %q), want (true, %q)", dup, result, "file contents")
	}
}

func TestCache_Check_KeyOrderIndependent(t *testing.T) {
	c := New(DefaultOptions())
	c.Store("search", map[string]any{"query": "go", "limit": float64(5)}, "result a")

	dup, result := c.Check("search", map[string]any{"limit": float64(5), "query": "go"})
	if !dup || result != "result a" {
		t.Errorf("Check() = (%v, %q), want duplicate regardless of key order", dup, result)
	}
}

func TestCache_Check_FuzzySearchMatch(t *testing.T) {
	c := New(DefaultOptions())
	c.Store("search", map[string]any{"query": "The Best Go Libraries"}, "list of libraries")

	dup, result := c.Check("search", map[string]any{"query": "best go libraries"})
	if !dup || result != "list of libraries" {
		t.Errorf("Check() = (%v, %q), want fuzzy duplicate match", dup, result)
	}
}

func TestRecordToolName_ResetsOnNonSearch(t *testing.T) {
	c := New(DefaultOptions())
	c.RecordToolName("search")
	c.RecordToolName("search")
	if !c.SearchLoopDetected() {
		t.Fatal("expected loop detected after 2 consecutive searches with default threshold")
	}

	c.RecordToolName("read_file")
	if c.SearchLoopDetected() {
		t.Error("expected counter reset after non-search tool name")
	}
}

func TestSearchCapReached(t *testing.T) {
	c := New(Options{MaxConsecutiveSearches: 10, MaxTotalSearches: 2})
	c.Store("search", map[string]any{"query": "one"}, "r1")
	if c.SearchCapReached() {
		t.Fatal("expected cap not reached after 1 search")
	}
	c.Store("search", map[string]any{"query": "two"}, "r2")
	if !c.SearchCapReached() {
		t.Error("expected cap reached after 2 searches with MaxTotalSearches=2")
	}
}

func TestNormalizeQuery_SortsAndDedupesTokens(t *testing.T) {
	a := normalizeQuery("Go Concurrency Patterns!")
	b := normalizeQuery("concurrency, patterns, go go go")
	if a != b {
		t.Errorf("normalizeQuery mismatch: %q vs %q", a, b)
	}
}
