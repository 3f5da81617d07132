package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/collector"
	"github.com/pershinghar/go-distributed-advisor-collection/pkg/config"
	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
	"github.com/pershinghar/go-distributed-advisor-collection/pkg/util"
)

var (
	configPath     string
	currentAccount string
)

func main() {
	root := &cobra.Command{
		Use:          "collector",
		Short:        "Collect Trusted Advisor check results per account and store them in S3",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file (optional)")
	root.PersistentFlags().StringVar(&currentAccount, "current-account", "", "account the collector runs in (default: caller identity)")

	root.AddCommand(newLambdaCmd(), newPollCmd(), newConsumeCmd(), newAccountCmd(), newRunsCmd())
	root.SetArgs(runtimeArgs(os.Args[1:]))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg       *config.Config
	log       *zap.Logger
	awsCfg    aws.Config
	delegator *util.Delegator
	processor *collector.Processor
	ledger    *util.Ledger
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := util.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Bucket == "" {
		return nil, models.NewError(models.ConfigInvalid, "setup", fmt.Errorf("S3 bucket is not configured (S3_BUCKET_NAME)"))
	}
	log.Info("S3 target", zap.String("bucket", cfg.Store.Bucket), zap.String("prefix", cfg.Store.Prefix))

	awsCfg, err := util.LoadAWSConfig(ctx, cfg.Region, cfg.Fetch.MaxAttempts)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Fetch.ParsedCallTimeout()
	delegator := util.NewDelegator(awsCfg, timeout, log)
	writer := util.NewS3Writer(awsCfg, cfg.Store.Bucket, timeout, log)
	newChecks := func(id models.ScopedIdentity) collector.CheckService {
		return util.NewSupportClient(util.ConfigFor(awsCfg, id), cfg.Fetch.Language, timeout, log)
	}

	processor := collector.NewProcessor(delegator, newChecks, writer,
		collector.NewAggregator(cfg.Fetch.Workers, log),
		collector.Options{
			Partition:     cfg.Partition,
			AdminRole:     cfg.Roles.Admin,
			MemberRole:    cfg.Roles.Member,
			SupportRegion: cfg.Fetch.SupportRegion,
			KeyPrefix:     cfg.Store.Prefix,
		}, log)

	a := &app{cfg: cfg, log: log, awsCfg: awsCfg, delegator: delegator, processor: processor}

	if cfg.LedgerPath != "" {
		ledger, err := util.OpenLedger(ctx, cfg.LedgerPath, log)
		if err != nil {
			log.Warn("run ledger disabled", zap.Error(err))
		} else {
			a.ledger = ledger
			processor.WithLedger(ledger)
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
	_ = a.log.Sync()
}

// rootAccount resolves the account the delegation chain starts from.
func (a *app) rootAccount(ctx context.Context) (string, error) {
	if currentAccount != "" {
		return currentAccount, nil
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return util.AccountFromARN(lc.InvokedFunctionArn)
	}
	return a.delegator.CurrentAccount(ctx)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newLambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve SQS-triggered Lambda invocations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			lambda.Start(func(ctx context.Context, event events.SQSEvent) error {
				root, err := a.rootAccount(ctx)
				if err != nil {
					a.log.Error("cannot resolve current account", zap.Error(err))
					return nil
				}
				a.log.Info("executing Lambda function",
					zap.String("version", lambdacontext.FunctionVersion),
					zap.Int("records", len(event.Records)),
				)

				bodies := make([]string, 0, len(event.Records))
				for _, r := range event.Records {
					bodies = append(bodies, r.Body)
				}
				a.processor.ProcessBatch(ctx, bodies, root)
				return nil
			})
			return nil
		},
	}
}

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Long-poll the SQS account queue until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Queue.URL == "" {
				return models.NewError(models.ConfigInvalid, "poll", fmt.Errorf("SQS queue URL is not configured"))
			}
			root, err := a.rootAccount(ctx)
			if err != nil {
				return err
			}

			queue := util.NewSQSClient(a.awsCfg, a.cfg.Queue.URL, a.cfg.Queue.WaitSeconds, a.cfg.Fetch.ParsedCallTimeout(), a.log)
			return queue.Poll(ctx, func(ctx context.Context, body string) error {
				a.processor.ProcessBatch(ctx, []string{body}, root)
				return nil
			})
		},
	}
}

func newConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Consume the RabbitMQ account queue until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			root, err := a.rootAccount(ctx)
			if err != nil {
				return err
			}

			queue := util.NewRabbitMQClient(&a.cfg.Queue.RabbitMQ, a.log)
			defer queue.Close()
			if err := queue.Connect(ctx); err != nil {
				return err
			}

			err = queue.Consume(ctx, func(ctx context.Context, body string) error {
				a.processor.ProcessBatch(ctx, []string{body}, root)
				return nil
			})
			if err != nil {
				return err
			}

			a.log.Info("collector running, press Ctrl+C to stop")
			<-ctx.Done()
			a.log.Info("collector stopped")
			return nil
		},
	}
}

func newAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "account <account-id>",
		Short: "Collect the checks of one account now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			root, err := a.rootAccount(ctx)
			if err != nil {
				return err
			}

			run := a.processor.ProcessAccount(ctx, args[0], root)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		},
	}
}

func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the latest account runs recorded in the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.LedgerPath == "" {
				return models.NewError(models.ConfigInvalid, "runs", fmt.Errorf("no ledger configured (LEDGER_PATH)"))
			}
			log, err := util.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			ledger, err := util.OpenLedger(cmd.Context(), cfg.LedgerPath, log)
			if err != nil {
				return err
			}
			defer ledger.Close()

			runs, err := ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range runs {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}

// runtimeArgs selects the lambda command when a Lambda custom runtime starts
// the binary without arguments.
func runtimeArgs(args []string) []string {
	if len(args) == 0 && os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		return []string{"lambda"}
	}
	return args
}
