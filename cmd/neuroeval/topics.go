package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gestor-t/neuroeval/internal/config"
	"github.com/gestor-t/neuroeval/internal/infrastructure/redpanda"
)

func newTopicsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage the workflow event topic",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "ensure",
			Short: "Create the event topic if it does not exist",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withAdmin(cmd, func(cfg *config.Config, admin *redpanda.Admin) error {
					if err := admin.EnsureTopics(cmd.Context(), cfg.Kafka.Topic); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "topic %s ready\n", cfg.Kafka.Topic)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List broker topics",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withAdmin(cmd, func(_ *config.Config, admin *redpanda.Admin) error {
					names, err := admin.ListTopics(cmd.Context())
					if err != nil {
						return err
					}
					for _, name := range names {
						fmt.Fprintln(cmd.OutOrStdout(), name)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "describe",
			Short: "Show partitions of the event topic",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withAdmin(cmd, func(cfg *config.Config, admin *redpanda.Admin) error {
					details, err := admin.DescribeTopic(cmd.Context(), cfg.Kafka.Topic)
					if err != nil {
						return err
					}
					for _, p := range details.Partitions {
						fmt.Fprintf(cmd.OutOrStdout(), "%s[%d] leader=%d replicas=%v isr=%v\n",
							details.Name, p.ID, p.Leader, p.Replicas, p.ISR)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func withAdmin(cmd *cobra.Command, fn func(*config.Config, *redpanda.Admin) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is not configured")
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := redpanda.HealthCheck(cmd.Context(), cfg.Kafka.Brokers); err != nil {
		return err
	}
	admin, err := redpanda.NewAdmin(cfg.Kafka.Brokers, logger.With(zap.String("component", "admin")))
	if err != nil {
		return err
	}
	defer admin.Close()
	return fn(cfg, admin)
}
