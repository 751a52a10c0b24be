package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"dayplan/internal/app"
	"dayplan/internal/config"
	"dayplan/internal/logging"
	"dayplan/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type cliOptions struct {
	configPath string
	userID     int64
	verbose    bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "planctl",
		Short:         "Inspect and drive calendar sync and day planning",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "configs/config.yaml", "path to the YAML config")
	root.PersistentFlags().Int64Var(&opts.userID, "user", 1, "user id to act for")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "plan", Title: "Planning:"},
	)

	root.AddCommand(
		importCmd(opts),
		retryCmd(opts),
		statusCmd(opts),
		requeueCmd(opts),
		scheduleCmd(opts),
		tokensCmd(opts),
	)
	return root
}

// withApp builds the application for one command and tears it down after.
func withApp(cmd *cobra.Command, opts *cliOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := zerolog.Nop()
	if opts.verbose {
		base, closer, err := logging.New(cfg.Logging, cfg.App)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		if closer != nil {
			defer (func() { _ = closer.Close() })()
		}
		logger = base.With().Str("component", "planctl").Logger()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer (func() { _ = a.Close() })()

	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func importCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "import",
		GroupID: "sync",
		Short:   "Import today's Google events and tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				result, err := a.Engine.ImportFromGoogle(ctx, opts.userID)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func retryCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "retry",
		GroupID: "sync",
		Short:   "Run one drain pass over the retry queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				report, err := a.Drainer.RunOnce(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
}

func statusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: "sync",
		Short:   "Show sync health for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				status, err := a.Engine.GetSyncStatus(ctx, opts.userID)
				if err != nil {
					return err
				}
				return printJSON(cmd, status)
			})
		},
	}
}

func requeueCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "requeue ENTRY_ID",
		GroupID: "sync",
		Short:   "Move a failed queue entry back to pending",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Engine.RequeueFailed(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "entry %d requeued\n", id)
				return nil
			})
		},
	}
}

func scheduleCmd(opts *cliOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:     "schedule",
		GroupID: "plan",
		Short:   "Build a time-blocked plan for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				day := time.Now().In(a.Location)
				if date != "" {
					parsed, err := time.ParseInLocation("2006-01-02", date, a.Location)
					if err != nil {
						return fmt.Errorf("invalid --date, expected YYYY-MM-DD: %w", err)
					}
					day = parsed
				}
				result, err := a.Planner.PlanDay(ctx, opts.userID, day)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to plan (YYYY-MM-DD), defaults to today")
	return cmd
}

var errSyncDisabled = errors.New("google sync is not configured")

func tokensCmd(opts *cliOptions) *cobra.Command {
	tokens := &cobra.Command{
		Use:     "tokens",
		GroupID: "sync",
		Short:   "Manage stored Google credentials",
	}

	url := &cobra.Command{
		Use:   "url",
		Short: "Print the consent URL to connect an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if a.Credentials == nil {
					return errSyncDisabled
				}
				link, err := a.Credentials.AuthCodeURL(uuid.NewString())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), link)
				return nil
			})
		},
	}

	exchange := &cobra.Command{
		Use:   "exchange CODE",
		Short: "Exchange an authorization code and store the tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if a.Credentials == nil {
					return errSyncDisabled
				}
				tokens, err := a.Credentials.Exchange(ctx, opts.userID, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "connected user %d, token valid until %s\n",
					opts.userID, tokens.ExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: "Forget the stored Google credentials for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if a.Credentials == nil {
					return errSyncDisabled
				}
				if err := a.Credentials.DeleteTokens(ctx, opts.userID, models.ProviderGoogle); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "credentials for user %d deleted\n", opts.userID)
				return nil
			})
		},
	}

	tokens.AddCommand(url, exchange, del)
	return tokens
}
