package model

import "time"

// RoundStatus is the terminal (or in-flight) state of a single activation.
type RoundStatus string

const (
	RoundRunning   RoundStatus = "running"
	RoundCompleted RoundStatus = "completed"
	RoundStopped   RoundStatus = "stopped"
	RoundError     RoundStatus = "error"
)

// Round is the unit of work: one activation from wake to sleep. Created by
// the loop when a round begins and mutated only by the loop until its
// timeline entry is written.
type Round struct {
	ID            int64       `json:"round"`
	StartTime     time.Time   `json:"start_time"`
	Status        RoundStatus `json:"status"`
	ToolsUsed     int         `json:"tools_used"`
	Duration      float64     `json:"duration"`
	Summary       string      `json:"summary"`
	NotebookSaved bool        `json:"notebook_saved"`
}

// ToolCall is a single agent-requested action. It belongs to exactly one
// round and is never mutated after completion.
type ToolCall struct {
	Name      string         `json:"name"`
	Args      map[string]any `json:"args"`
	Result    string         `json:"result"`
	StartedAt time.Time      `json:"started_at"`
	Duration  float64        `json:"duration"`
}

// TimelineEntry is the durable per-round record: stats, the LLM summary and
// the full action log. Once written it is final, removable only by operator
// deletion.
type TimelineEntry struct {
	Round         int64       `json:"round" firestore:"round"`
	Timestamp     time.Time   `json:"timestamp" firestore:"timestamp"`
	Status        RoundStatus `json:"status" firestore:"status"`
	ToolsUsed     int         `json:"tools_used" firestore:"tools_used"`
	Duration      float64     `json:"duration" firestore:"duration"`
	Summary       string      `json:"summary" firestore:"summary"`
	NotebookSaved bool        `json:"notebook_saved" firestore:"notebook_saved"`
	ToolCalls     []ToolCall  `json:"tool_calls" firestore:"tool_calls"`
}
