package config

import (
	"fmt"
	"time"
)

// LockMode selects how the dispatcher serializes turns against the session
// store: "global" (one mutex for every session, matching the teacher's
// default) or "per-session" (one mutex per session key, more throughput
// under many concurrent sessions at the cost of cross-session ordering
// guarantees).
type LockMode string

const (
	LockModeGlobal     LockMode = "global"
	LockModePerSession LockMode = "per-session"
)

// Runtime is the runtime's own configuration surface: the knobs
// SPEC_FULL.md's components read directly. Loading this from a file (or any
// other external source) is out of scope — config-file loading and the
// onboarding CLI are explicit non-goals — so Runtime has yaml tags for shape
// only and no Load/Parse function; callers construct it however they like
// (flags, env, a hand-rolled file reader in their own binary) and pass the
// result in.
type Runtime struct {
	Workspace string `yaml:"workspace"`

	LockMode     LockMode `yaml:"lock_mode"`
	MemoryWindow int      `yaml:"memory_window"`

	MaxToolResultChars int `yaml:"max_tool_result_chars"`

	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	MaxIterations int   `yaml:"max_iterations"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	SinkPath        string `yaml:"sink_path"`
	SinkRotateBytes int    `yaml:"sink_rotate_bytes"`
	SinkMaxBackups  int    `yaml:"sink_max_backups"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`

	HealthTimeout time.Duration `yaml:"health_timeout"`
}

// DefaultRuntime returns the shape every flag in cmd/loom defaults to.
func DefaultRuntime() Runtime {
	return Runtime{
		Workspace:          "./workspace",
		LockMode:           LockModeGlobal,
		MemoryWindow:       20,
		MaxToolResultChars: 500,
		Model:              "",
		MaxTokens:          4096,
		Temperature:        0.7,
		MaxIterations:      25,
		LogLevel:           "info",
		LogFormat:          "text",
		SinkPath:           "./workspace/diagnostic.jsonl",
		SinkRotateBytes:    20 * 1024 * 1024,
		SinkMaxBackups:     5,
		HealthTimeout:      10 * time.Second,
	}
}

// Validate checks the fields that would otherwise fail confusingly deep
// inside some other package (an empty workspace path breaking FileStore, an
// unrecognized lock mode silently defaulting).
func (r Runtime) Validate() error {
	if r.Workspace == "" {
		return fmt.Errorf("config: workspace must not be empty")
	}
	switch r.LockMode {
	case LockModeGlobal, LockModePerSession:
	default:
		return fmt.Errorf("config: lock_mode must be %q or %q, got %q", LockModeGlobal, LockModePerSession, r.LockMode)
	}
	if r.MemoryWindow <= 0 {
		return fmt.Errorf("config: memory_window must be positive, got %d", r.MemoryWindow)
	}
	if r.MaxToolResultChars <= 0 {
		return fmt.Errorf("config: max_tool_result_chars must be positive, got %d", r.MaxToolResultChars)
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("config: max_tokens must be positive, got %d", r.MaxTokens)
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("config: temperature must be in [0, 2], got %v", r.Temperature)
	}
	if r.MaxIterations <= 0 {
		return fmt.Errorf("config: max_iterations must be positive, got %d", r.MaxIterations)
	}
	switch r.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format must be %q or %q, got %q", "text", "json", r.LogFormat)
	}
	return nil
}
