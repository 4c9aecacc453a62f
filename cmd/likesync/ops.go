package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dailyyoga/likesync/ch"
	"github.com/dailyyoga/likesync/like"
	"github.com/spf13/cobra"
)

func newToggleCommand(rootOpts *rootOptions) *cobra.Command {
	var userID, tweetID string

	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Flip one user's like on one tweet and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				res, err := like.NewToggler(a.log, store, a.metrics).Toggle(ctx, userID, tweetID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "acting user id (required)")
	cmd.Flags().StringVar(&tweetID, "tweet", "", "tweet id (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("tweet")

	return cmd
}

func newReconcileCommand(rootOpts *rootOptions) *cobra.Command {
	var cycles int

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run reconciliation cycles once and exit",
		Long: `Run up to --cycles reconciliation cycles, stopping early when the pending
queue is empty, and print the outcome of each cycle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				reconciler, err := a.reconciler()
				if err != nil {
					return err
				}
				defer reconciler.Wait()

				for i := 0; i < cycles && ctx.Err() == nil; i++ {
					outcome := reconciler.ReconcileNext(ctx)
					fmt.Fprintln(cmd.OutOrStdout(), outcome)
					if outcome == like.OutcomeEmpty {
						break
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&cycles, "cycles", 1, "maximum number of cycles")
	return cmd
}

func newParkedCommand(rootOpts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parked",
		Short: "Inspect or requeue tweets that exhausted their reconcile attempts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print parked tweet ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				reconciler, err := a.storeOnlyReconciler()
				if err != nil {
					return err
				}
				for _, id := range reconciler.Parked(ctx) {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "requeue",
		Short: "Move every parked tweet back onto the pending queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				reconciler, err := a.storeOnlyReconciler()
				if err != nil {
					return err
				}
				n, err := reconciler.RequeueParked(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d\n", n)
				return nil
			})
		},
	})

	return cmd
}

type statsOutput struct {
	Totals  *like.ReconcileStats `json:"totals"`
	Backlog like.Backlog         `json:"backlog"`
}

func newStatsCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the shared reconcile totals and the current backlog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				reconciler, err := a.storeOnlyReconciler()
				if err != nil {
					return err
				}
				monitor, err := like.NewBacklogMonitor(a.log, a.cfg.Backlog, a.store, nil)
				if err != nil {
					return err
				}
				backlog, err := monitor.Sample(ctx)
				if err != nil {
					return err
				}

				out := statsOutput{Backlog: backlog}
				if totals, ok := reconciler.Stats(ctx); ok {
					out.Totals = &totals
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}

func newMigrateCommand(rootOpts *rootOptions) *cobra.Command {
	var withClickHouse bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the system-of-record tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				repo, err := a.openRepository()
				if err != nil {
					return err
				}
				if err := repo.AutoMigrate(ctx); err != nil {
					return err
				}
				if !withClickHouse {
					return nil
				}
				if a.cfg.ClickHouse == nil {
					return errors.New("--clickhouse needs a clickhouse section")
				}
				client, err := ch.NewClient(a.cfg.ClickHouse, a.log)
				if err != nil {
					return err
				}
				defer client.Close()
				return like.CreateLikeEventsTable(ctx, client)
			})
		},
	}

	cmd.Flags().BoolVar(&withClickHouse, "clickhouse", false, "also create the like_events table")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
