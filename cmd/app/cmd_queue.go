package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"SignalEngine/internal/di"
	"SignalEngine/pkg/config"
	"SignalEngine/pkg/queue"
)

var deadLimit int64

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the notification queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the length of every queue list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withQueue(cmd, func(q *queue.RedisQueue) error {
			st, err := q.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		})
	},
}

var queueDeadCmd = &cobra.Command{
	Use:   "dead",
	Short: "List dead-lettered notification jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withQueue(cmd, func(q *queue.RedisQueue) error {
			envs, err := q.DeadLetters(cmd.Context(), deadLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd, envs)
		})
	},
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Move dead-lettered jobs back to the pending list",
	Long: `Move every dead-lettered job back to the pending list with a fresh retry
budget. Run it once the cause of the failures (a webhook endpoint, the
broker) is fixed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withQueue(cmd, func(q *queue.RedisQueue) error {
			n, err := q.RequeueDead(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%d jobs requeued\n", n)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueStatsCmd, queueDeadCmd, queueRequeueCmd)
	queueDeadCmd.Flags().Int64Var(&deadLimit, "limit", 50, "maximum jobs to list")
}

func withQueue(cmd *cobra.Command, fn func(q *queue.RedisQueue) error) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return err
	}
	rc, err := di.ProvideRedisCache(cfg)
	if err != nil {
		return err
	}
	if rc == nil {
		return errors.New("redis is disabled in this config")
	}
	defer rc.Close()

	q := di.ProvideQueue(cfg, rc, nil, nil)
	if q == nil {
		return errors.New("queue is disabled in this config")
	}
	return fn(q)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
