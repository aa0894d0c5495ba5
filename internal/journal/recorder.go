package journal

import (
	"context"
	"time"

	"github.com/house-audio/audionode/internal/node"
)

// Logger is the logging interface the recorder needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// recordTimeout bounds a single insert so a stalled database cannot
// back the recorder up behind the event stream.
const recordTimeout = 5 * time.Second

// pruneInterval is how often old entries are cleaned out.
const pruneInterval = time.Hour

// Recorder persists node events into the journal.
type Recorder struct {
	repo      Repository
	logger    Logger
	retention time.Duration
}

// NewRecorder creates a recorder. Entries older than retention are
// pruned periodically; a zero retention disables pruning.
func NewRecorder(repo Repository, retention time.Duration, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:      repo,
		logger:    logger,
		retention: retention,
	}
}

// Run consumes events until the channel closes or the context is
// cancelled. Persistence failures are logged and dropped.
func (r *Recorder) Run(ctx context.Context, events <-chan node.Event) {
	var pruneTick <-chan time.Time
	if r.retention > 0 {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		pruneTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			r.record(ctx, event)
		case <-pruneTick:
			r.prune(ctx)
		}
	}
}

// record converts one manager event into a journal entry.
func (r *Recorder) record(ctx context.Context, event node.Event) {
	entry := &Entry{
		Kind:      event.Kind,
		CreatedAt: event.Timestamp,
	}

	switch {
	case event.Device != nil:
		entry.Address = event.Device.Address
		entry.Details = map[string]any{
			"name":  event.Device.Name,
			"state": string(event.Device.State),
		}
		if event.Device.LastError != "" {
			entry.Details["error"] = event.Device.LastError
		}
	case event.Link != nil:
		entry.Address = event.Link.DeviceAddress
		entry.OutputID = event.Link.OutputID
		entry.Details = map[string]any{
			"volume": event.Link.Volume,
		}
	case event.Output != nil:
		entry.OutputID = event.Output.ID
		entry.Details = map[string]any{
			"name": event.Output.Name,
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	if err := r.repo.Record(opCtx, entry); err != nil {
		r.logger.Warn("failed to journal event", "kind", event.Kind, "error", err)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	removed, err := r.repo.Prune(opCtx, time.Now().Add(-r.retention))
	if err != nil {
		r.logger.Warn("journal prune failed", "error", err)
		return
	}
	if removed > 0 {
		r.logger.Debug("journal pruned", "removed", removed)
	}
}
