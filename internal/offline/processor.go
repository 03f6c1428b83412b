package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coopa/backend/internal/config"
)

// ProcessResult tallies one pass over the queue.
type ProcessResult struct {
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Conflicts int `json:"conflicts"`
}

// Processor replays due queue items and applies the retry and conflict
// policy to each outcome.
type Processor struct {
	store    *Store
	replayer Replayer
	cfg      *config.SyncConfig
	now      func() time.Time
}

func NewProcessor(store *Store, replayer Replayer, cfg *config.SyncConfig) *Processor {
	return &Processor{store: store, replayer: replayer, cfg: cfg, now: time.Now}
}

// ProcessQueue replays every due item in enqueue order. Per-item failures
// are recorded on the item; only store errors are returned.
func (p *Processor) ProcessQueue(ctx context.Context) (ProcessResult, error) {
	var result ProcessResult

	items, err := p.store.DueItems(ctx, p.now())
	if err != nil {
		return result, fmt.Errorf("failed to load sync queue: %w", err)
	}

	for i := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := p.processItem(ctx, &items[i], &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (p *Processor) processItem(ctx context.Context, item *QueueItem, result *ProcessResult) error {
	res, err := p.replayer.Replay(ctx, *item)
	switch {
	case err != nil:
		return p.fail(ctx, item, err.Error(), result)
	case res.StatusCode == http.StatusConflict:
		result.Conflicts++
		return p.resolve(ctx, item, res.Body, result)
	case res.StatusCode >= 200 && res.StatusCode < 300:
		result.Synced++
		log.Printf("[SYNC] Synced item %d: %s %s", item.ID, item.Method, item.URL)
		return p.store.deleteItem(ctx, item.ID)
	case permanentFailure(res):
		reason := fmt.Sprintf("server responded %d", res.StatusCode)
		if reply, ok := parseReply(res.Body); ok {
			reason += ": " + reply.Error
		}
		return p.park(ctx, item, reason, result)
	default:
		return p.fail(ctx, item, fmt.Sprintf("server responded %d", res.StatusCode), result)
	}
}

// permanentFailure reports whether a response rejects the request itself,
// so replaying the same payload cannot succeed. Client errors are permanent
// unless the envelope marks them retryable; timeouts and rate limits never
// are.
func permanentFailure(res *ReplayResult) bool {
	if res.StatusCode < 400 || res.StatusCode >= 500 {
		return false
	}
	if res.StatusCode == http.StatusRequestTimeout || res.StatusCode == http.StatusTooManyRequests {
		return false
	}
	if reply, ok := parseReply(res.Body); ok && reply.Retryable != nil {
		return !*reply.Retryable
	}
	return true
}

// park marks item failed at once instead of scheduling another attempt.
func (p *Processor) park(ctx context.Context, item *QueueItem, reason string, result *ProcessResult) error {
	item.Retries++
	item.Status = StatusFailed
	item.LastError = reason
	result.Failed++
	log.Printf("[SYNC] Item %d rejected: %s", item.ID, reason)
	return p.store.saveItem(ctx, item)
}

// fail counts an attempt and either schedules the next one or parks the
// item once the retry budget is exceeded.
func (p *Processor) fail(ctx context.Context, item *QueueItem, reason string, result *ProcessResult) error {
	item.Retries++
	item.LastError = reason
	if item.Retries > p.cfg.MaxRetries {
		item.Status = StatusFailed
		result.Failed++
		log.Printf("[SYNC] Item %d failed after %d attempts: %s", item.ID, item.Retries, reason)
	} else {
		item.NextAttemptAt = p.now().Add(p.backoff(item.Retries))
		result.Retried++
		log.Printf("[SYNC] Item %d attempt %d failed, retrying at %s: %s",
			item.ID, item.Retries, item.NextAttemptAt.Format(time.RFC3339), reason)
	}
	return p.store.saveItem(ctx, item)
}

func (p *Processor) backoff(retries int) time.Duration {
	delays := p.cfg.RetryDelays
	if len(delays) == 0 {
		return 0
	}
	i := retries - 1
	if i >= len(delays) {
		i = len(delays) - 1
	}
	if i < 0 {
		i = 0
	}
	return delays[i]
}

func (p *Processor) resolve(ctx context.Context, item *QueueItem, body json.RawMessage, result *ProcessResult) error {
	remote, ok := RemoteVersion(body)
	if !ok {
		// Without the server's version there is nothing to merge or defer
		// to, so the item waits for a manual decision.
		res := Resolution{Strategy: config.UserChoice, Local: item.Data}
		if reply, ok := parseReply(body); ok {
			res.Reason = reply.Error
		}
		item.Status = StatusFailed
		item.LastError = "conflict requires manual resolution"
		if res.Reason != "" {
			item.LastError += ": " + res.Reason
		}
		item.Conflict = &res
		result.Failed++
		log.Printf("[SYNC] Conflict on item %d has no remote version, parked: %s", item.ID, res.Reason)
		return p.store.saveItem(ctx, item)
	}

	res := ResolveConflict(item.Data, remote, p.cfg.Strategy, p.now())

	switch res.Strategy {
	case config.ServerWins:
		log.Printf("[SYNC] Conflict on item %d resolved server-wins, dropping local change", item.ID)
		return p.store.deleteItem(ctx, item.ID)
	case config.Merge:
		item.Data = res.Merged
		item.Conflict = &res
		log.Printf("[SYNC] Conflict on item %d merged, retrying", item.ID)
		return p.fail(ctx, item, "conflict merged", result)
	default:
		item.Status = StatusFailed
		item.LastError = "conflict requires manual resolution"
		item.Conflict = &res
		result.Failed++
		log.Printf("[SYNC] Conflict on item %d parked for manual resolution", item.ID)
		return p.store.saveItem(ctx, item)
	}
}
