// Package activation runs the agent's life: the loop that wakes it up,
// mediates its tool use, and puts it back to sleep with its memory saved.
package activation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"awakener/pkg/adapter"
	"awakener/pkg/model"
	"awakener/pkg/repository"
	"awakener/pkg/tool"
	"awakener/pkg/tool/notebook"
	"awakener/pkg/usecase/snapshot"
	"awakener/pkg/utils/logging"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrAlreadyRunning = goerr.New("agent is already running")
	ErrStillStopping  = goerr.New("agent is still finishing its current round")
)

// Config holds the loop's operating parameters.
type Config struct {
	AgentHome   string
	DataDir     string
	PersonaPath string

	// Interval is the sleep between rounds. Zero or negative starts the
	// next round immediately.
	Interval time.Duration
	// MaxToolCalls is the per-round tool budget.
	MaxToolCalls int
	// ShellTimeout bounds each tool dispatch.
	ShellTimeout time.Duration
	// RecentNotes is how many notebook entries the prompt carries.
	RecentNotes int
	// KnowledgeMaxChars caps the injected knowledge index.
	KnowledgeMaxChars int
	// MaxSummaryChars caps the timeline summary.
	MaxSummaryChars int
}

func (cfg *Config) setDefaults() {
	if cfg.MaxToolCalls == 0 {
		cfg.MaxToolCalls = 20
	}
	if cfg.ShellTimeout == 0 {
		cfg.ShellTimeout = 120 * time.Second
	}
	if cfg.RecentNotes == 0 {
		cfg.RecentNotes = 3
	}
	if cfg.KnowledgeMaxChars == 0 {
		cfg.KnowledgeMaxChars = 2000
	}
	if cfg.MaxSummaryChars == 0 {
		cfg.MaxSummaryChars = 500
	}
}

// Controller owns the activation loop: a single background goroutine that is
// the only writer of round state. Operator-facing calls only touch the small
// flag set guarded by the mutex.
type Controller struct {
	cfg      Config
	gemini   adapter.Gemini
	repo     repository.Repository
	registry *tool.Registry
	notebook *notebook.Tool
	storage  adapter.Storage
	auditor  *snapshot.Service
	sink     Sink
	runLog   *logging.RunLog
	now      func() time.Time

	mu         sync.Mutex
	state      model.AgentState
	round      int64
	toolsUsed  int
	roundStart *time.Time
	lastError  string
	stopCh     chan struct{}
	done       chan struct{}
}

type Option func(*Controller)

// WithStorage enables raw action-log blobs per round.
func WithStorage(storage adapter.Storage) Option {
	return func(c *Controller) { c.storage = storage }
}

// WithAuditor enables the post-round snapshot update.
func WithAuditor(auditor *snapshot.Service) Option {
	return func(c *Controller) { c.auditor = auditor }
}

// WithSink attaches the real-time event stream.
func WithSink(sink Sink) Option {
	return func(c *Controller) { c.sink = sink }
}

// WithRunLog attaches the per-day operator log.
func WithRunLog(runLog *logging.RunLog) Option {
	return func(c *Controller) { c.runLog = runLog }
}

func New(cfg Config, gemini adapter.Gemini, repo repository.Repository, registry *tool.Registry, nb *notebook.Tool, opts ...Option) *Controller {
	cfg.setDefaults()
	c := &Controller{
		cfg:      cfg,
		gemini:   gemini,
		repo:     repo,
		registry: registry,
		notebook: nb,
		state:    model.StateIdle,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the loop. Rejected when the agent is already running or a
// previous loop has not yet finished winding down.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Loop aliveness is authoritative: the published state may lag behind
	// a stop request or an errored round, the done channel never does.
	if c.done != nil {
		select {
		case <-c.done:
		default:
			if c.state == model.StateStopping {
				return ErrStillStopping
			}
			return ErrAlreadyRunning
		}
	}

	if err := seedAgentHome(c.cfg.AgentHome); err != nil {
		return err
	}

	c.state = model.StateRunning
	c.lastError = ""
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})

	go c.run(ctx, c.stopCh, c.done)
	return nil
}

// Stop requests a graceful halt. A round in progress finishes its in-flight
// tool call and ends early; the inter-round sleep is cancelled immediately.
// Stop returns without waiting; use Wait to block until the loop exits.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopCh == nil || c.done == nil {
		c.mu.Unlock()
		return
	}
	select {
	case <-c.done: // loop already exited
		c.mu.Unlock()
		return
	default:
	}
	select {
	case <-c.stopCh: // stop already requested
		c.mu.Unlock()
		return
	default:
	}
	c.state = model.StateStopping
	close(c.stopCh)
	c.mu.Unlock()

	c.publish(model.NewEvent(model.EventStatus, map[string]any{
		"status":  string(model.StateStopping),
		"message": "stop requested, agent will stop after the current round",
	}))
}

// Wait blocks until the loop goroutine has exited. Safe to call when the
// loop never started.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Restart stops the loop, waits for the actual idle transition, and starts
// again. No overlapping rounds.
func (c *Controller) Restart(ctx context.Context) error {
	c.Stop()
	c.Wait()
	return c.Start(ctx)
}

// Status returns a point-in-time copy of the loop state.
func (c *Controller) Status() model.AgentStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.AgentStatus{
		State:          c.state,
		Round:          c.round,
		RoundStartTime: c.roundStart,
		ToolsUsed:      c.toolsUsed,
		LastError:      c.lastError,
	}
}

// Inspire queues a one-way operator hint for the next round. A newer message
// overwrites an unconsumed one.
func (c *Controller) Inspire(ctx context.Context, message string) error {
	if err := c.repo.PutInspiration(ctx, &model.Inspiration{
		Message:     message,
		SubmittedAt: c.now().UTC(),
	}); err != nil {
		return goerr.Wrap(err, "failed to queue inspiration")
	}
	c.log(ctx, "[INSPIRATION] queued: "+headTruncate(message, 100))
	return nil
}

func (c *Controller) run(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)
	logger := logging.From(ctx)

	round := int64(1)
	if last, err := c.repo.LastRound(ctx); err == nil {
		round = last + 1
	} else {
		logger.Warn("failed to resume round counter, starting at 1", "error", err)
	}

	c.log(ctx, fmt.Sprintf("[START] activator started | home: %s | resume at round %d", c.cfg.AgentHome, round))
	c.log(ctx, fmt.Sprintf("[START] interval: %s | tool budget: %d", c.cfg.Interval, c.cfg.MaxToolCalls))

	for !c.stopRequestedOn(stopCh) {
		c.beginRound(round)
		res := c.runRound(ctx, round)
		c.finalize(ctx, round, res)

		round++
		if res.status == model.RoundStopped || c.stopRequestedOn(stopCh) {
			break
		}

		// An errored round leaves the agent in the error state until the
		// next round begins, so operators see it in status polls.
		if res.status == model.RoundError {
			c.setErrored()
		}

		if c.cfg.Interval > 0 {
			if res.status != model.RoundError {
				c.setWaiting(round)
			}
			c.log(ctx, fmt.Sprintf("[WAIT] next activation in %s", c.cfg.Interval))
			timer := time.NewTimer(c.cfg.Interval)
			select {
			case <-timer.C:
			case <-stopCh:
				timer.Stop()
			}
		}
	}

	c.setIdle()
	c.log(ctx, "[STOP] activator stopped")
}

func (c *Controller) beginRound(round int64) {
	start := c.now().UTC()

	c.mu.Lock()
	c.state = model.StateRunning
	c.round = round
	c.toolsUsed = 0
	c.roundStart = &start
	c.mu.Unlock()

	c.notebook.BeginRound(round)

	c.runlogWrite(fmt.Sprintf("==== Round %d | %s ====", round, start.Format("2006-01-02 15:04:05")))
	c.publish(model.NewEvent(model.EventStatus, map[string]any{
		"status": string(model.StateRunning), "round": round,
	}))
	c.publish(model.NewEvent(model.EventRound, map[string]any{
		"round": round, "event": "started",
	}))
}

// finalize writes the round's durable record. Persistence failures are
// logged and never crash the loop; the next scheduled round still starts.
func (c *Controller) finalize(ctx context.Context, round int64, res *roundResult) {
	saved := c.notebook.Saved()
	if !saved && res.status != model.RoundError {
		c.log(ctx, "[WARN] agent did not save notebook this round, auto-recording minimal note")
		if err := c.repo.PutNotebook(ctx, &model.NotebookEntry{
			Round:     round,
			Timestamp: c.now().UTC(),
			Content:   "(auto-saved: agent did not write a note this round)",
		}); err != nil {
			c.log(ctx, "[ERROR] failed to save placeholder note: "+err.Error())
		}
	}

	var duration time.Duration
	c.mu.Lock()
	start := c.roundStart
	c.mu.Unlock()
	if start != nil {
		duration = c.now().UTC().Sub(*start)
	}

	entry := &model.TimelineEntry{
		Round:         round,
		Timestamp:     c.now().UTC(),
		Status:        res.status,
		ToolsUsed:     res.toolsUsed,
		Duration:      duration.Seconds(),
		Summary:       res.summary,
		NotebookSaved: saved,
		ToolCalls:     res.toolCalls,
	}
	if start != nil {
		entry.Timestamp = *start
	}

	if err := c.repo.PutTimeline(ctx, entry); err != nil {
		c.log(ctx, "[ERROR] failed to record timeline: "+err.Error())
		c.publish(model.NewEvent(model.EventError, map[string]any{
			"round": round, "message": "failed to record timeline: " + err.Error(),
		}))
	}

	c.saveActionLog(ctx, round, res)

	if c.auditor != nil && res.status == model.RoundCompleted {
		if _, err := c.auditor.Update(ctx, entry); err != nil {
			c.log(ctx, "[SNAPSHOT] update failed: "+err.Error())
		}
	}

	noteStatus := "saved"
	if !saved {
		noteStatus = "NOT SAVED"
	}
	c.runlogWrite(fmt.Sprintf("[DONE] Round %d complete | Tools: %d | Time: %.1fs | Notebook: %s",
		round, res.toolsUsed, duration.Seconds(), noteStatus))
	c.publish(model.NewEvent(model.EventRound, map[string]any{
		"round":          round,
		"event":          "completed",
		"status":         string(res.status),
		"tools_used":     res.toolsUsed,
		"duration":       duration.Seconds(),
		"notebook_saved": saved,
	}))
}

// ActionLogKey is the storage key of a round's raw tool-call blob.
func ActionLogKey(round int64) string {
	return fmt.Sprintf("rounds/%d/actions.json", round)
}

// saveActionLog stores the raw per-round tool-call blob, best effort.
func (c *Controller) saveActionLog(ctx context.Context, round int64, res *roundResult) {
	if c.storage == nil || len(res.toolCalls) == 0 {
		return
	}
	w, err := c.storage.Put(ctx, ActionLogKey(round))
	if err != nil {
		c.log(ctx, "[ERROR] failed to open action log blob: "+err.Error())
		return
	}
	if err := json.NewEncoder(w).Encode(res.toolCalls); err != nil {
		c.log(ctx, "[ERROR] failed to write action log blob: "+err.Error())
	}
	if err := w.Close(); err != nil {
		c.log(ctx, "[ERROR] failed to close action log blob: "+err.Error())
	}
}

func (c *Controller) setWaiting(nextRound int64) {
	c.mu.Lock()
	if c.state == model.StateRunning {
		c.state = model.StateWaiting
	}
	c.mu.Unlock()
	c.publish(model.NewEvent(model.EventStatus, map[string]any{
		"status": string(model.StateWaiting), "next_round": nextRound,
		"next_in": c.cfg.Interval.Seconds(),
	}))
}

func (c *Controller) setErrored() {
	c.mu.Lock()
	c.state = model.StateError
	msg := c.lastError
	c.mu.Unlock()
	c.publish(model.NewEvent(model.EventStatus, map[string]any{
		"status": string(model.StateError), "message": msg,
	}))
}

func (c *Controller) setIdle() {
	c.mu.Lock()
	// A loop that stops right after an errored round keeps the error state
	// visible; the next Start clears it.
	if c.state != model.StateError {
		c.state = model.StateIdle
	}
	status := c.state
	c.roundStart = nil
	c.mu.Unlock()
	c.publish(model.NewEvent(model.EventStatus, map[string]any{
		"status": string(status), "message": "agent stopped",
	}))
}

func (c *Controller) setToolsUsed(n int) {
	c.mu.Lock()
	c.toolsUsed = n
	c.mu.Unlock()
}

func (c *Controller) setLastError(msg string) {
	c.mu.Lock()
	c.lastError = msg
	c.mu.Unlock()
}

func (c *Controller) stopRequested() bool {
	c.mu.Lock()
	stopCh := c.stopCh
	c.mu.Unlock()
	return stopRequestedOn(stopCh)
}

func (c *Controller) stopRequestedOn(stopCh chan struct{}) bool {
	return stopRequestedOn(stopCh)
}

func stopRequestedOn(stopCh chan struct{}) bool {
	if stopCh == nil {
		return false
	}
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

func (c *Controller) publish(evt model.Event) {
	if c.sink != nil {
		c.sink.Publish(evt)
	}
}

func (c *Controller) emit(eventType model.EventType, data map[string]any) {
	c.publish(model.NewEvent(eventType, data))
}

// log writes an operator-facing line to slog, the run log and the event
// stream.
func (c *Controller) log(ctx context.Context, text string) {
	logging.From(ctx).Info(text)
	c.runlogWrite(text)
	c.emit(model.EventLog, map[string]any{"text": text})
}

func (c *Controller) runlogWrite(text string) {
	if c.runLog != nil {
		_ = c.runLog.Append(text)
	}
}
