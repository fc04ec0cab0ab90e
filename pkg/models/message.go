// Package models defines the core data types shared across the runtime: the
// chat-completion message variant, inbound/outbound channel envelopes,
// sessions, tool call/result shapes, and diagnostic events.
package models

import (
	"encoding/json"
	"time"
)

// ChannelType identifies the messaging surface a message arrived on or is
// destined for. The core never dials out to a channel itself — these values
// only route and tag, they never select a transport.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelSlack    ChannelType = "slack"
	ChannelFeishu   ChannelType = "feishu"
	ChannelCLI      ChannelType = "cli"
	ChannelSystem   ChannelType = "system"
	ChannelAPI      ChannelType = "api"
)

// Role is the chat-completion author role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Media is an attachment reference carried on an inbound or outbound message.
// Path is a local filesystem path; the context builder resolves it to a
// data-URL part only when the file exists and its MIME type is image/*,
// silently dropping it otherwise.
type Media struct {
	Path     string `json:"path"`
	MimeType string `json:"mime_type,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// InboundMessage is an envelope delivered by a channel into the bus.
//
// SessionKey is derived, never stored directly: channel + ":" + chat_id,
// unless SessionKeyOverride is set. RunID and TurnID are assigned lazily by
// the dispatcher if absent; once assigned they are mirrored into Metadata
// and the message is otherwise treated as immutable.
type InboundMessage struct {
	Channel            ChannelType       `json:"channel"`
	SenderID           string            `json:"sender_id"`
	ChatID             string            `json:"chat_id"`
	Content            string            `json:"content"`
	Media              []Media           `json:"media,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	Timestamp          time.Time         `json:"timestamp"`
	SessionKeyOverride string            `json:"session_key_override,omitempty"`
	RunID              string            `json:"run_id,omitempty"`
	TurnID             string            `json:"turn_id,omitempty"`
}

// SessionKey computes the canonical session key for this message.
func (m InboundMessage) SessionKey() string {
	if m.SessionKeyOverride != "" {
		return m.SessionKeyOverride
	}
	return string(m.Channel) + ":" + m.ChatID
}

// OutboundMessage is an envelope the dispatcher publishes for a channel to
// deliver. Metadata keys "_progress" and "_tool_hint" are transient framing
// markers: a progress frame is discardable by /stop and never persisted to
// session history; a tool hint summarizes a pending tool call for the user.
type OutboundMessage struct {
	Channel  ChannelType       `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Media    []Media           `json:"media,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	RunID    string            `json:"run_id,omitempty"`
	TurnID   string            `json:"turn_id,omitempty"`
}

// IsProgress reports whether this message is a transient progress frame.
func (m OutboundMessage) IsProgress() bool {
	return m.Metadata != nil && m.Metadata["_progress"] == "true"
}

// IsToolHint reports whether this message announces a pending tool call.
func (m OutboundMessage) IsToolHint() bool {
	return m.Metadata != nil && m.Metadata["_tool_hint"] == "true"
}

// MessagePart is one piece of a multi-part user message (text or an image
// rendered as a data URL). Only User messages carry multiple parts; every
// other role carries a flat Content string.
type MessagePart struct {
	Type     string `json:"type"` // "text" or "image"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"` // data: URL
}

// ToolCall is one function-call request embedded in an assistant message, in
// the chat-completion wire shape.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function ToolFunction `json:"function"`
}

// ToolFunction is the name/arguments pair inside a ToolCall.
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded argument object
}

// Message is the chat-completion message shape flowing between the context
// builder, the orchestrator, and the provider. It models the tagged-variant
// design (system/user/assistant/tool) as a single struct with role-specific
// fields left zero for roles that don't use them, keeping provider wire
// serialization a flat, boundary-local concern rather than a type switch
// scattered through the orchestrator.
type Message struct {
	Role             Role           `json:"role"`
	Content          string         `json:"content,omitempty"`
	Parts            []MessagePart  `json:"parts,omitempty"`
	ToolCalls        []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID       string         `json:"tool_call_id,omitempty"` // role=tool only
	Name             string         `json:"name,omitempty"`         // role=tool only
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Session is a per-chat stateful conversation, keyed by channel:chat_id (or
// an explicit override). Appending to Messages only ever grows the slice;
// Clear truncates to empty and resets LastConsolidated.
type Session struct {
	Key              string      `json:"key"`
	Messages         []Message   `json:"messages"`
	LastConsolidated int         `json:"last_consolidated"`
	Metadata         SessionMeta `json:"metadata"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// SessionMeta carries the handful of session-scoped flags the dispatcher
// toggles via slash commands.
type SessionMeta struct {
	PlanMode             bool   `json:"plan_mode,omitempty"`
	DoctorMode           bool   `json:"doctor_mode,omitempty"`
	DoctorCodexSessionID string `json:"doctor_codex_session_id,omitempty"`
}

// Clear truncates the session to empty and resets the consolidation cursor.
func (s *Session) Clear() {
	s.Messages = s.Messages[:0]
	s.LastConsolidated = 0
}

// Append grows Messages by one and never shrinks it; callers rely on this
// invariant when computing LastConsolidated deltas.
func (s *Session) Append(m Message) {
	s.Messages = append(s.Messages, m)
}

// ToolTrace is one recorded tool invocation within a ReAct step.
type ToolTrace struct {
	Name          string `json:"name"`
	Arguments     string `json:"arguments"`
	ResultPreview string `json:"result_preview"` // <= 200 chars
	OK            bool   `json:"ok"`
}

// Usage is token accounting merged across every model call in a turn.
type Usage struct {
	PromptTokens     int `json:"prompt"`
	CompletionTokens int `json:"completion"`
	TotalTokens      int `json:"total"`
}

// Add merges another Usage into this one in place.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// LLMResponse is the provider's reply to one Chat call.
type LLMResponse struct {
	Content          string     `json:"content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	Usage            Usage      `json:"usage"`
	FinishReason     string     `json:"finish_reason,omitempty"`
}

// HasToolCalls reports whether the model requested any tool invocations.
func (r LLMResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Severity is the level of a DiagnosticEvent.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// DiagnosticEvent is one structured record written to the observability
// sink. Field order is not semantically significant; unknown fields MUST be
// ignored by readers, since new fields may be added over time.
type DiagnosticEvent struct {
	EventID      string         `json:"event_id"`
	Timestamp    time.Time      `json:"ts"`
	Name         string         `json:"name"`
	Component    string         `json:"component"`
	Severity     Severity       `json:"severity"`
	SessionKey   string         `json:"session_key,omitempty"`
	Channel      string         `json:"channel,omitempty"`
	ChatID       string         `json:"chat_id,omitempty"`
	RunID        string         `json:"run_id,omitempty"`
	TurnID       string         `json:"turn_id,omitempty"`
	Operation    string         `json:"operation,omitempty"`
	Status       string         `json:"status,omitempty"`
	LatencyMs    int64          `json:"latency_ms,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Attrs        map[string]any `json:"attrs,omitempty"`
}

// ToolDefinition is the catalog shape a tool exposes to the registry and,
// via the registry's Definitions(), to the LLM.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON-schema

	// Execute runs the tool. Recoverable failures MUST be returned as a
	// string beginning with "Error" rather than via the error return, so
	// gateway tracing can set ToolTrace.OK without inspecting a Go error —
	// the error return is reserved for invocation-infrastructure failures
	// (unknown tool, schema validation) the gateway raises before Execute
	// is ever called.
	Execute func(ctx ExecContext, args map[string]any) (string, error) `json:"-"`
}

// ExecContext carries the ambient request-scoped values a tool's Execute
// needs without importing the orchestrator or dispatcher packages.
type ExecContext struct {
	Channel    string
	ChatID     string
	MessageID  string
	SessionKey string
	RunID      string
	TurnID     string
}
