package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a real-time event delivered to dashboard observers.
type EventType string

const (
	EventStatus       EventType = "status"
	EventRound        EventType = "round"
	EventToolCall     EventType = "tool_call"
	EventToolResult   EventType = "tool_result"
	EventThoughtChunk EventType = "thought_chunk"
	EventThoughtDone  EventType = "thought_done"
	EventLog          EventType = "log"
	EventError        EventType = "error"
)

// Event is one entry in the ordered real-time stream. Events are emitted in
// the causal order they occur inside a round.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent stamps an event with a fresh ID and the current time.
func NewEvent(eventType EventType, data map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// AgentState is the activation loop's externally visible state.
type AgentState string

const (
	StateIdle     AgentState = "idle"
	StateRunning  AgentState = "running"
	StateWaiting  AgentState = "waiting"
	StateStopping AgentState = "stopping"
	StateError    AgentState = "error"
)

// AgentStatus is a point-in-time copy of the loop's state, safe to read
// concurrently with a round in progress.
type AgentStatus struct {
	State          AgentState `json:"state"`
	Round          int64      `json:"round"`
	RoundStartTime *time.Time `json:"round_start_time,omitempty"`
	ToolsUsed      int        `json:"tools_used"`
	LastError      string     `json:"last_error,omitempty"`
}
