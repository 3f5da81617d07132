package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
	"github.com/pershinghar/go-distributed-advisor-collection/pkg/util"
)

// DefaultWorkers is the size of the fetch worker pool. Above ~5 concurrent
// calls the Support API gives no extra throughput.
const DefaultWorkers = 5

// ResultFetcher fetches the result of one check.
// A non-nil error means the task faulted and its record is dropped.
type ResultFetcher interface {
	GetCheckResult(ctx context.Context, checkID string) (models.CheckResult, error)
}

// Aggregator fans check result fetches out over a fixed worker pool and
// joins them into the records of one account.
type Aggregator struct {
	workers int
	log     *zap.Logger
}

// NewAggregator creates an aggregator with the given pool size.
func NewAggregator(workers int, log *zap.Logger) *Aggregator {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Aggregator{workers: workers, log: log.Named("aggregator")}
}

type outcome struct {
	check  models.CheckDescriptor
	result models.CheckResult
	err    error
}

// Aggregate fetches the result of every check for accountID and returns one
// record per check, in completion order. It returns only when every fetch has
// finished. Faulted fetches are logged and left out, so the output may be
// shorter than checks.
func (a *Aggregator) Aggregate(ctx context.Context, fetcher ResultFetcher, checks []models.CheckDescriptor, accountID string) []models.CheckOutputRecord {
	defer util.Track(a.log, "aggregate")()
	log := a.log.With(zap.String("account_id", accountID))

	unique := dedupe(checks, log)
	records := make([]models.CheckOutputRecord, 0, len(unique))
	if len(unique) == 0 {
		return records
	}

	workers := a.workers
	if workers > len(unique) {
		workers = len(unique)
	}

	tasks := make(chan models.CheckDescriptor)
	outcomes := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for check := range tasks {
				outcomes <- fetch(ctx, fetcher, check)
			}
		}()
	}

	go func() {
		for _, check := range unique {
			tasks <- check
		}
		close(tasks)
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		if o.err != nil {
			log.Error("check task failed, record omitted", zap.String("check_id", o.check.ID), zap.Error(o.err))
			continue
		}
		log.Debug("completed check", zap.String("check_id", o.check.ID))
		records = append(records, newRecord(o.check, accountID, o.result))
	}

	if omitted := len(unique) - len(records); omitted > 0 {
		log.Warn("some checks were omitted", zap.Int("omitted", omitted), zap.Int("records", len(records)))
	}
	return records
}

// fetch runs one task. Panics are turned into task faults so that a single
// bad check never takes its siblings down.
func fetch(ctx context.Context, fetcher ResultFetcher, check models.CheckDescriptor) (o outcome) {
	o.check = check
	defer func() {
		if r := recover(); r != nil {
			o.result = nil
			o.err = models.NewError(models.TaskFault, "fetch check "+check.ID, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err := fetcher.GetCheckResult(ctx, check.ID)
	if err != nil {
		var classified *models.Error
		if !errors.As(err, &classified) {
			err = models.NewError(models.TaskFault, "fetch check "+check.ID, err)
		}
		o.err = err
		return o
	}
	if result == nil {
		result = models.EmptyResult()
	}
	o.result = result
	return o
}

func newRecord(check models.CheckDescriptor, accountID string, result models.CheckResult) models.CheckOutputRecord {
	fields := make(map[string]any, len(check.Fields))
	for k, v := range check.Fields {
		fields[k] = v
	}
	return models.CheckOutputRecord{
		Check:     models.CheckDescriptor{ID: check.ID, Fields: fields},
		AccountID: accountID,
		Result:    result,
	}
}

// dedupe keeps the first descriptor of every check id.
func dedupe(checks []models.CheckDescriptor, log *zap.Logger) []models.CheckDescriptor {
	seen := make(map[string]struct{}, len(checks))
	out := make([]models.CheckDescriptor, 0, len(checks))
	for _, c := range checks {
		if _, dup := seen[c.ID]; dup {
			log.Warn("duplicate check id in catalog", zap.String("check_id", c.ID))
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
