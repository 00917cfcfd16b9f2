package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/ethereum/go-ethereum/common"
	cli "github.com/urfave/cli/v3"

	"github.com/vaultbridge/txflow/pkg/chain/evm"
	"github.com/vaultbridge/txflow/pkg/chain/stacks"
	"github.com/vaultbridge/txflow/pkg/chain/walletbridge"
	"github.com/vaultbridge/txflow/pkg/cmd"
	"github.com/vaultbridge/txflow/pkg/fees"
	"github.com/vaultbridge/txflow/pkg/guard"
	"github.com/vaultbridge/txflow/pkg/log"
	"github.com/vaultbridge/txflow/pkg/models"
	"github.com/vaultbridge/txflow/pkg/poller"
	"github.com/vaultbridge/txflow/pkg/watcher"
	"github.com/vaultbridge/txflow/pkg/workflow"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "txflow-api",
		Usage:                 "Run the multi-step transaction workflow engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "deposit-store-url",
				Usage:   "Deposit store URL (memory://, redis://...)",
				Value:   "memory://",
				Sources: cli.EnvVars("DEPOSIT_STORE_URL"),
			},
			&cli.StringFlag{
				Name:     "wallet-bridge-url",
				Usage:    "Base URL of the wallet bridge service",
				Required: true,
				Sources:  cli.EnvVars("WALLET_BRIDGE_URL"),
			},
			&cli.StringFlag{
				Name:     "rpc-url",
				Usage:    "EVM JSON-RPC endpoint for confirmation watching",
				Required: true,
				Sources:  cli.EnvVars("RPC_URL"),
			},
			&cli.StringFlag{
				Name:     "stacks-api-url",
				Usage:    "Stacks API base URL for the polled deposit leg",
				Required: true,
				Sources:  cli.EnvVars("STACKS_API_URL"),
			},
			&cli.StringFlag{
				Name:     "owner",
				Usage:    "Session account address",
				Required: true,
				Sources:  cli.EnvVars("OWNER_ADDRESS"),
			},
			&cli.StringFlag{
				Name:    "kinds-file",
				Usage:   "Optional JSON file overriding the built-in kind specs",
				Sources: cli.EnvVars("KINDS_FILE"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Interval between external status queries",
				Value:   poller.DefaultInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "poll-max-attempts",
				Usage:   "Maximum external status queries per deposit",
				Value:   poller.DefaultMaxAttempts,
				Sources: cli.EnvVars("POLL_MAX_ATTEMPTS"),
			},
			&cli.DurationFlag{
				Name:    "mint-grace-period",
				Usage:   "Delay between confirmation and assumed remote mint",
				Value:   poller.DefaultMintGracePeriod,
				Sources: cli.EnvVars("MINT_GRACE_PERIOD"),
			},
			&cli.DurationFlag{
				Name:    "fee-timeout",
				Usage:   "Timeout for remote fee quote calls",
				Value:   fees.DefaultTimeout,
				Sources: cli.EnvVars("FEE_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log output format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing txflow API")

	specs := workflow.DefaultKindSpecs()

	if kindsFile := command.String("kinds-file"); kindsFile != "" {
		loaded, err := loadKindSpecs(kindsFile)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to load kind specs", "error", err)

			return err
		}

		specs = loaded
	}

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	deposits := cmd.NewDepositStore(command.String("deposit-store-url"))
	defer func() {
		if err := deposits.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close deposit store", "error", err)
		}
	}()

	bridge := walletbridge.NewClient(command.String("wallet-bridge-url"))

	confirmations, err := evm.NewConfirmationSource(ctx, command.String("rpc-url"), 0)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to connect to RPC endpoint", "error", err)

		return err
	}
	defer confirmations.Close()

	confirmationWatcher := watcher.NewWatcher(confirmations, eventBus, logger)

	statusPoller := poller.NewPoller(
		poller.Config{
			Interval:        command.Duration("poll-interval"),
			MaxAttempts:     int(command.Int("poll-max-attempts")),
			MintGracePeriod: command.Duration("mint-grace-period"),
		},
		stacks.NewStatusEndpoint(command.String("stacks-api-url")),
		deposits,
		eventBus,
		logger,
	)

	engine := workflow.NewEngine(logger, eventBus, workflow.Config{
		Specs:     specs,
		Submitter: bridge,
		Querier:   bridge,
		Guard:     guard.NewReader(bridge, 0, logger),
		Watcher:   confirmationWatcher,
		Fees:      fees.NewResolver(command.Duration("fee-timeout"), fees.DefaultFallbackFee(), logger),
		Poller:    statusPoller,
		Deposits:  deposits,
		Owner:     common.HexToAddress(command.String("owner")),
	})

	err = engine.Subscribe(ctx)
	if err != nil {
		return err
	}

	err = eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	// Pending deposits from a previous page load resume polling immediately.
	err = statusPoller.Resume(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Failed to resume pending deposit polling", "error", err)
	}

	api := NewAPI(logger, engine, deposits, statusPoller)

	err = api.Start(int(command.Int("port")))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start API server", "error", err)

		return err
	}

	return nil
}

func loadKindSpecs(path string) (map[models.WorkflowKind]models.KindSpec, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw []map[string]any

	err = json.Unmarshal(payload, &raw)
	if err != nil {
		return nil, err
	}

	return workflow.LoadKindSpecs(raw)
}
