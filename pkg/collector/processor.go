package collector

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
	"github.com/pershinghar/go-distributed-advisor-collection/pkg/output"
	"github.com/pershinghar/go-distributed-advisor-collection/pkg/util"
)

// Object key parts of an output document.
const (
	FilenamePrefix = "trusted_advisor_checks"
	FilenameSuffix = ".json"
)

// SupportService is the service name handed to the delegator.
const SupportService = "support"

// Delegator produces a scoped identity through a chain of role assumptions.
type Delegator interface {
	Delegate(ctx context.Context, service, region, role1, role2 string) (models.ScopedIdentity, error)
}

// CheckService lists checks and fetches their results for one identity.
type CheckService interface {
	ResultFetcher
	ListChecks(ctx context.Context) ([]models.CheckDescriptor, error)
}

// ObjectWriter stores an output document.
type ObjectWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// RunRecorder keeps track of processed accounts.
type RunRecorder interface {
	Record(ctx context.Context, run models.AccountRun) error
}

// Options are the account-independent settings of a Processor.
type Options struct {
	Partition     string
	AdminRole     string
	MemberRole    string
	SupportRegion string
	KeyPrefix     string
}

// Processor runs the whole collection for one account: delegation, catalog,
// concurrent result fetch, formatting and the object store write.
type Processor struct {
	delegator  Delegator
	newChecks  func(models.ScopedIdentity) CheckService
	store      ObjectWriter
	aggregator *Aggregator
	ledger     RunRecorder
	opts       Options
	log        *zap.Logger
}

// NewProcessor wires a processor. newChecks builds the check service bound
// to the identity of one account run.
func NewProcessor(delegator Delegator, newChecks func(models.ScopedIdentity) CheckService, store ObjectWriter, aggregator *Aggregator, opts Options, log *zap.Logger) *Processor {
	if opts.SupportRegion == "" {
		opts.SupportRegion = "us-east-1"
	}
	return &Processor{
		delegator:  delegator,
		newChecks:  newChecks,
		store:      store,
		aggregator: aggregator,
		opts:       opts,
		log:        log.Named("collector"),
	}
}

// WithLedger records every account run in l.
func (p *Processor) WithLedger(l RunRecorder) *Processor {
	p.ledger = l
	return p
}

// ObjectKey returns the key of the output document of an account.
func ObjectKey(prefix, accountID string) string {
	return prefix + FilenamePrefix + "_" + accountID + FilenameSuffix
}

// ProcessBatch processes the account ids of one queue delivery, one after
// the other. currentAccount is the account the collector runs in, the root
// of the delegation chain. Failures stay inside their account.
func (p *Processor) ProcessBatch(ctx context.Context, accountIDs []string, currentAccount string) []models.AccountRun {
	runID := uuid.NewString()
	p.log.Info("processing batch", zap.String("run_id", runID), zap.Int("accounts", len(accountIDs)))

	runs := make([]models.AccountRun, 0, len(accountIDs))
	for _, body := range accountIDs {
		accountID := strings.TrimSpace(body)
		if accountID == "" {
			p.log.Error("skipping message with empty account id", zap.String("run_id", runID))
			continue
		}
		runs = append(runs, p.processAccount(ctx, runID, accountID, currentAccount))
	}
	return runs
}

// ProcessAccount processes a single account under a fresh run id.
func (p *Processor) ProcessAccount(ctx context.Context, accountID, currentAccount string) models.AccountRun {
	return p.processAccount(ctx, uuid.NewString(), accountID, currentAccount)
}

// Collect delegates into the member account and gathers its check records.
// Only a delegation failure is returned as an error; a missing catalog
// degrades to zero records.
func (p *Processor) Collect(ctx context.Context, accountID, currentAccount string) ([]models.CheckOutputRecord, int, error) {
	log := p.log.With(zap.String("account_id", accountID))
	log.Info("getting Trusted Advisor checks")

	adminRole := util.RoleARN(p.opts.Partition, currentAccount, p.opts.AdminRole)
	memberRole := util.RoleARN(p.opts.Partition, accountID, p.opts.MemberRole)

	identity, err := p.delegator.Delegate(ctx, SupportService, p.opts.SupportRegion, adminRole, memberRole)
	if err != nil {
		return nil, 0, err
	}

	checks := p.newChecks(identity)

	catalog, err := checks.ListChecks(ctx)
	if err != nil {
		log.Error("check catalog unavailable, account degrades to no records", zap.Error(err))
		return []models.CheckOutputRecord{}, 0, nil
	}

	records := p.aggregator.Aggregate(ctx, checks, catalog, accountID)
	return records, len(catalog), nil
}

func (p *Processor) processAccount(ctx context.Context, runID, accountID, currentAccount string) (run models.AccountRun) {
	log := p.log.With(zap.String("run_id", runID), zap.String("account_id", accountID))
	defer util.Track(log, "process_account")()

	run = models.AccountRun{RunID: runID, AccountID: accountID, StartedAt: time.Now().UTC()}
	defer func() {
		run.FinishedAt = time.Now().UTC()
		p.record(ctx, log, run)
	}()

	records, checks, err := p.Collect(ctx, accountID, currentAccount)
	run.Checks = checks
	if err != nil {
		log.Error("failed to delegate into account", zap.Error(err))
		run.Status = models.RunDelegationFailed
		run.Error = err.Error()
		return run
	}
	if len(records) == 0 {
		log.Error("failed to extract Trusted Advisor checks for account")
		run.Status = models.RunEmpty
		return run
	}

	body, err := output.Format(records)
	if err != nil {
		log.Error("some records could not be formatted", zap.Error(err))
	}
	if body == "" {
		run.Status = models.RunEmpty
		run.Error = errString(err)
		return run
	}
	run.Records = strings.Count(body, "\n")

	key := ObjectKey(p.opts.KeyPrefix, accountID)
	log.Info("writing Trusted Advisor checks", zap.Int("records", run.Records), zap.String("key", key))
	if err := p.store.Put(ctx, key, []byte(body), output.ContentType); err != nil {
		run.Status = models.RunStoreFailed
		run.Error = err.Error()
		return run
	}

	run.ObjectKey = key
	run.Status = models.RunWritten
	return run
}

func (p *Processor) record(ctx context.Context, log *zap.Logger, run models.AccountRun) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.Record(ctx, run); err != nil {
		log.Warn("failed to record account run", zap.Error(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
