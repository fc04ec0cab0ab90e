package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/haasonsaas/loom/internal/dedup"
	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/internal/tools"
	"github.com/haasonsaas/loom/pkg/models"
	"github.com/haasonsaas/loom/pkg/provider"
)

// thinkTagPatterns matches the reasoning-tag families stripped from
// assistant content before it is surfaced as progress or final text:
// <think>, <reasoning>, <thought>, <inner_monologue>, including unclosed
// trailing opens and orphan closers.
var thinkTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>\s*`),
	regexp.MustCompile(`(?is)<reasoning>.*?</reasoning>\s*`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>\s*`),
	regexp.MustCompile(`(?is)<inner_monologue>.*?</inner_monologue>\s*`),
	regexp.MustCompile(`(?is)<think>.*$`),
	regexp.MustCompile(`(?is)<reasoning>.*$`),
	regexp.MustCompile(`(?is)<thought>.*$`),
	regexp.MustCompile(`(?is)<inner_monologue>.*$`),
	regexp.MustCompile(`(?is)^.*?</think>\s*`),
	regexp.MustCompile(`(?is)^.*?</reasoning>\s*`),
	regexp.MustCompile(`(?is)^.*?</thought>\s*`),
	regexp.MustCompile(`(?is)^.*?</inner_monologue>\s*`),
}

// stripThinkTags removes every reasoning-tag family, repeating until the
// text is stable (a model can nest or concatenate multiple blocks).
func stripThinkTags(s string) string {
	for {
		next := s
		for _, re := range thinkTagPatterns {
			next = re.ReplaceAllString(next, "")
		}
		next = strings.TrimSpace(next)
		if next == s {
			return next
		}
		s = next
	}
}

// planBlockPattern matches a "**Plan:**" section followed by a numbered
// checklist.
var planBlockPattern = regexp.MustCompile(`(?s)\*\*Plan:\*\*\s*\n((?:\s*\d+\..*\n?)+)`)

// extractPlanBlock returns the numbered checklist body of a plan block, if
// present.
func extractPlanBlock(text string) (string, bool) {
	m := planBlockPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// ReactStep is one recorded iteration of the reason-act loop.
type ReactStep struct {
	Iteration    int
	Thought      string
	Actions      []models.ToolTrace
	Observations []string
}

// AgentResult is the outcome of one RunAgentLoop invocation.
type AgentResult struct {
	FinalText       string
	Usage           models.Usage
	Messages        []models.Message
	Trace           []ReactStep
	HitIterationCap bool
}

// ProgressFunc receives human-readable progress text as the loop runs
// (extracted plan blocks, stripped thoughts, tool-call hints).
type ProgressFunc func(text string)

// BeforeModelFunc runs immediately before each model call; this is where a
// caller (the session dispatcher) injects queued interrupt events into the
// message list.
type BeforeModelFunc func(messages []models.Message) []models.Message

// BeforeToolFunc runs immediately before each tool invocation. Returning
// true cancels this call and every remaining call in the current batch.
type BeforeToolFunc func(messages []models.Message, index int, allCalls []models.ToolCall) bool

// LoopOptions configures one RunAgentLoop invocation.
type LoopOptions struct {
	MaxIterations int
	Model         string
	MaxTokens     int
	Temperature   float64
	TrustTagging  bool
	DedupOptions  dedup.Options

	// Tracer opens a child span per iteration and per tool call under
	// whatever span is already live on ctx (SPEC_FULL.md §4.11). Nil skips
	// tracing entirely; no caller is required to supply one.
	Tracer *observability.Tracer
}

// DefaultLoopOptions returns sensible defaults: 10 iterations, trust tagging
// on, default dedup thresholds.
func DefaultLoopOptions() LoopOptions {
	return LoopOptions{
		MaxIterations: 10,
		MaxTokens:     4096,
		Temperature:   0.7,
		TrustTagging:  true,
		DedupOptions:  dedup.DefaultOptions(),
	}
}

// RunAgentLoop drives the model↔tool reason-act cycle to completion, bounded
// by opts.MaxIterations.
func RunAgentLoop(
	ctx context.Context,
	client provider.Client,
	registry *tools.Registry,
	initialMessages []models.Message,
	opts LoopOptions,
	execCtx models.ExecContext,
	onProgress ProgressFunc,
	beforeModel BeforeModelFunc,
	beforeTool BeforeToolFunc,
) (AgentResult, error) {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultLoopOptions().MaxIterations
	}

	messages := append([]models.Message(nil), initialMessages...)
	cache := dedup.New(opts.DedupOptions)

	result := AgentResult{}
	toolDefs := registry.Definitions()

	for iteration := 0; iteration < opts.MaxIterations; iteration++ {
		if beforeModel != nil {
			messages = beforeModel(messages)
		}

		iterCtx, endIteration := startChildSpan(ctx, opts.Tracer, "agent.iteration", "iteration", iteration)
		resp, err := client.Chat(iterCtx, messages, toolDefs, opts.Model, opts.MaxTokens, opts.Temperature)
		endIteration(err)
		if err != nil {
			break
		}
		result.Usage.Add(resp.Usage)

		if !resp.HasToolCalls() {
			content := stripThinkTags(resp.Content)
			messages = append(messages, models.Message{Role: models.RoleAssistant, Content: content})
			result.FinalText = content
			result.Messages = messages
			result.Trace = append(result.Trace, ReactStep{Iteration: iteration, Thought: content})
			return result, nil
		}

		step := ReactStep{Iteration: iteration}

		stripped := stripThinkTags(resp.Content)
		if plan, ok := extractPlanBlock(resp.Content); ok {
			emit(onProgress, plan)
			step.Thought = plan
		} else if stripped != "" {
			emit(onProgress, stripped)
			step.Thought = stripped
		}
		for _, tc := range resp.ToolCalls {
			emit(onProgress, toolHint(tc))
		}

		messages = append(messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   stripped,
			ToolCalls: resp.ToolCalls,
		})

		interrupted := false
		for i, tc := range resp.ToolCalls {
			if beforeTool != nil && beforeTool(messages, i, resp.ToolCalls) {
				interrupted = true
				for j := i; j < len(resp.ToolCalls); j++ {
					messages = append(messages, toolMessage(resp.ToolCalls[j], "CANCELLED: User interrupted"))
				}
				break
			}

			args := parseArguments(tc.Function.Arguments)

			_, endTool := startToolSpan(ctx, opts.Tracer, tc.Function.Name)

			var outcome string
			var trace models.ToolTrace
			switch {
			case tc.Function.Name == "search" && cache.SearchCapReached():
				outcome = "Search limit reached"
				trace = models.ToolTrace{Name: tc.Function.Name, Arguments: tc.Function.Arguments, ResultPreview: outcome, OK: false}
			default:
				if dup, cached := cache.Check(tc.Function.Name, args); dup {
					outcome = cached
					trace = models.ToolTrace{Name: tc.Function.Name, Arguments: tc.Function.Arguments, ResultPreview: preview(outcome), OK: !isErrorOutcome(outcome)}
				} else {
					var execTrace models.ToolTrace
					outcome, execTrace = registry.Invoke(execCtx, tc.Function.Name, args, opts.TrustTagging)
					cache.Store(tc.Function.Name, args, outcome)
					trace = execTrace
				}
			}
			if !trace.OK {
				endTool(fmt.Errorf("%s", outcome))
			} else {
				endTool(nil)
			}

			cache.RecordToolName(tc.Function.Name)
			step.Actions = append(step.Actions, trace)
			step.Observations = append(step.Observations, preview(outcome))

			messages = append(messages, toolMessage(tc, outcome))
		}

		if !interrupted && cache.SearchLoopDetected() {
			messages = append(messages, models.Message{
				Role:    models.RoleUser,
				Content: "[System] STOP SEARCHING. You have searched too many times in a row without synthesizing an answer. Use what you already have and respond to the user now.",
			})
		}

		result.Trace = append(result.Trace, step)
	}

	result.HitIterationCap = true
	result.FinalText = fmt.Sprintf("I reached the maximum number of tool call iterations (%d) without completing the task.", opts.MaxIterations)
	result.Messages = messages
	return result, nil
}

func emit(fn ProgressFunc, text string) {
	if fn != nil && text != "" {
		fn(text)
	}
}

// startChildSpan opens a named span under ctx via tracer, returning the span's
// context and a closer that records err (if any) and ends the span. tracer
// nil skips tracing entirely so callers don't need to guard every call site.
func startChildSpan(ctx context.Context, tracer *observability.Tracer, name string, attrKV ...any) (context.Context, func(error)) {
	if tracer == nil {
		return ctx, func(error) {}
	}
	spanCtx, span := tracer.Start(ctx, name)
	if len(attrKV) > 0 {
		tracer.SetAttributes(span, attrKV...)
	}
	return spanCtx, func(err error) {
		tracer.RecordError(span, err)
		span.End()
	}
}

// startToolSpan opens the tool.<name> span per SPEC_FULL.md §4.11.
func startToolSpan(ctx context.Context, tracer *observability.Tracer, toolName string) (context.Context, func(error)) {
	if tracer == nil {
		return ctx, func(error) {}
	}
	spanCtx, span := tracer.TraceToolExecution(ctx, toolName)
	return spanCtx, func(err error) {
		tracer.RecordError(span, err)
		span.End()
	}
}

func toolHint(tc models.ToolCall) string {
	return fmt.Sprintf("Calling %s(%s)", tc.Function.Name, tc.Function.Arguments)
}

func toolMessage(tc models.ToolCall, content string) models.Message {
	return models.Message{
		Role:       models.RoleTool,
		Content:    content,
		ToolCallID: tc.ID,
		Name:       tc.Function.Name,
	}
}

// parseArguments accepts a JSON argument object, falling back to a lenient
// JSON5 parse if strict JSON fails, and finally an empty object if both
// fail.
func parseArguments(raw string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args
	}
	if err := json5.Unmarshal([]byte(raw), &args); err == nil {
		return args
	}
	return map[string]any{}
}

func isErrorOutcome(s string) bool {
	const prefix = "Error"
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func preview(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max]
}
