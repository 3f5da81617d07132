// Package dispatch seeds the account work queue: it splits the account list
// into fixed-size batches and submits each batch to a queue backend.
package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
	"github.com/pershinghar/go-distributed-advisor-collection/pkg/util"
)

// DefaultBatchSize is the largest batch SQS accepts in one call.
const DefaultBatchSize = 10

// BatchSender submits one batch of entries and reports per-entry outcomes.
type BatchSender interface {
	SendBatch(ctx context.Context, entries []models.QueueEntry) (models.BatchResult, error)
}

// AccountSource provides the accounts to seed.
type AccountSource interface {
	Accounts(ctx context.Context) ([]string, error)
}

// StaticAccounts is an AccountSource backed by a fixed list.
type StaticAccounts []string

// Accounts returns a copy of the list.
func (s StaticAccounts) Accounts(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// Summary counts what one dispatch did.
type Summary struct {
	Batches int `json:"batches"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// Dispatcher sends account ids to the work queue.
type Dispatcher struct {
	sender    BatchSender
	batchSize int
	log       *zap.Logger
}

// New creates a dispatcher. A nil sender turns Dispatch into a no-op.
func New(sender BatchSender, batchSize int, log *zap.Logger) *Dispatcher {
	if batchSize < 1 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}
	return &Dispatcher{sender: sender, batchSize: batchSize, log: log.Named("dispatcher")}
}

// Seed reads the accounts of src and dispatches them.
func (d *Dispatcher) Seed(ctx context.Context, src AccountSource) (Summary, error) {
	accounts, err := src.Accounts(ctx)
	if err != nil {
		return Summary{}, err
	}
	return d.Dispatch(ctx, accounts), nil
}

// Dispatch submits accountIDs in contiguous batches. A batch is sent as soon
// as it is full, and the last partial batch once the input is exhausted.
// Failed entries and failed calls are logged; later batches are always sent.
func (d *Dispatcher) Dispatch(ctx context.Context, accountIDs []string) Summary {
	var summary Summary
	if d.sender == nil {
		d.log.Debug("no queue configured, skipping dispatch")
		return summary
	}
	defer util.Track(d.log, "dispatch")()
	d.log.Info("sending accounts list for Trusted Advisor checks extraction", zap.Int("accounts", len(accountIDs)))

	batch := make([]models.QueueEntry, 0, d.batchSize)
	for _, accountID := range accountIDs {
		batch = append(batch, models.NewQueueEntry(accountID))
		if len(batch) >= d.batchSize {
			d.send(ctx, batch, &summary)
			batch = make([]models.QueueEntry, 0, d.batchSize)
		}
	}
	if len(batch) > 0 {
		d.send(ctx, batch, &summary)
	}

	d.log.Debug("dispatch finished", zap.Int("batches", summary.Batches), zap.Int("sent", summary.Sent), zap.Int("failed", summary.Failed))
	return summary
}

func (d *Dispatcher) send(ctx context.Context, batch []models.QueueEntry, summary *Summary) {
	summary.Batches++

	result, err := d.sender.SendBatch(ctx, batch)
	if err != nil {
		d.log.Error("failed to send batch", zap.Int("entries", len(batch)), zap.Error(err))
		summary.Failed += len(batch)
		return
	}
	if len(result.Failed) > 0 {
		d.log.Error("failed to send some messages",
			zap.Error(models.NewError(models.QueueEntryFailure, "send batch", nil)),
			zap.Stringer("response", result),
		)
	}
	summary.Failed += len(result.Failed)
	summary.Sent += len(batch) - len(result.Failed)
}
