package model

import "time"

// NotebookEntry is the agent's own continuity memory, at most one per round.
// If the agent writes its notebook twice in a round the last write wins.
type NotebookEntry struct {
	Round     int64     `json:"round" firestore:"round"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
	Content   string    `json:"content" firestore:"content"`
}

// Inspiration is a one-way operator hint: a single slot, overwritten on
// re-submit, consumed (read and cleared) at the start of the next round.
type Inspiration struct {
	Message     string    `json:"message" firestore:"message"`
	SubmittedAt time.Time `json:"submitted_at" firestore:"submitted_at"`
}
