package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/config"
	"github.com/pershinghar/go-distributed-advisor-collection/pkg/dispatch"
	"github.com/pershinghar/go-distributed-advisor-collection/pkg/util"
)

var (
	configPath string
	accountIDs []string
)

func main() {
	root := &cobra.Command{
		Use:          "dispatcher",
		Short:        "Send the list of target accounts to the Trusted Advisor collection queue",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file (optional)")
	root.PersistentFlags().StringSliceVar(&accountIDs, "accounts", nil, "accounts to dispatch, overrides the configured list")

	root.AddCommand(newRunCmd(), newLambdaCmd())
	root.SetArgs(runtimeArgs(os.Args[1:]))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg        *config.Config
	log        *zap.Logger
	dispatcher *dispatch.Dispatcher
	close      func()
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if len(accountIDs) > 0 {
		cfg.Accounts = accountIDs
	}

	log, err := util.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	sender, closeSender, err := newSender(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		log:        log,
		dispatcher: dispatch.New(sender, cfg.Queue.BatchSize, log),
		close: func() {
			closeSender()
			_ = log.Sync()
		},
	}, nil
}

func newSender(ctx context.Context, cfg *config.Config, log *zap.Logger) (dispatch.BatchSender, func(), error) {
	if !cfg.DispatchEnabled() {
		return nil, func() {}, nil
	}

	switch cfg.Queue.Backend {
	case config.BackendRabbitMQ:
		client := util.NewRabbitMQClient(&cfg.Queue.RabbitMQ, log)
		if err := client.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	default:
		awsCfg, err := util.LoadAWSConfig(ctx, cfg.Region, cfg.Fetch.MaxAttempts)
		if err != nil {
			return nil, nil, err
		}
		timeout := cfg.Fetch.ParsedCallTimeout()
		log.Info("SQS target", zap.String("queue", cfg.Queue.URL))
		return util.NewSQSClient(awsCfg, cfg.Queue.URL, cfg.Queue.WaitSeconds, timeout, log), func() {}, nil
	}
}

func (a *app) dispatch(ctx context.Context) error {
	summary, err := a.dispatcher.Seed(ctx, dispatch.StaticAccounts(a.cfg.Accounts))
	if err != nil {
		return err
	}
	a.log.Info("dispatch completed",
		zap.Int("batches", summary.Batches),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	)
	return nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Dispatch the configured accounts once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			return a.dispatch(ctx)
		},
	}
}

func newLambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve scheduled Lambda invocations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			lambda.Start(func(ctx context.Context, event events.CloudWatchEvent) error {
				if lc, ok := lambdacontext.FromContext(ctx); ok {
					a.log.Info("executing Lambda function",
						zap.String("version", lambdacontext.FunctionVersion),
						zap.String("invoked_function_arn", lc.InvokedFunctionArn),
					)
				}
				a.log.Debug("event", zap.String("source", event.Source), zap.String("detail_type", event.DetailType))
				return a.dispatch(ctx)
			})
			return nil
		},
	}
}

// runtimeArgs selects the lambda command when a Lambda custom runtime starts
// the binary without arguments.
func runtimeArgs(args []string) []string {
	if len(args) == 0 && os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		return []string{"lambda"}
	}
	return args
}
