package main

import (
	"context"
	"errors"

	"github.com/dailyyoga/likesync/ch"
	"github.com/dailyyoga/likesync/kafka"
	"github.com/dailyyoga/likesync/like"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errRelayNotConfigured = errors.New("relay needs kafka.consumer and clickhouse sections")

func newRelayCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Copy like notifications from kafka into ClickHouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, runRelay)
		},
	}
}

func runRelay(ctx context.Context, a *app) error {
	if a.cfg.Kafka.Consumer == nil || a.cfg.ClickHouse == nil {
		return errRelayNotConfigured
	}

	chCfg := *a.cfg.ClickHouse
	if chCfg.WriterConfig == nil {
		chCfg.WriterConfig = ch.DefaultWriterConfig()
	}
	client, err := ch.NewClient(&chCfg, a.log)
	if err != nil {
		return err
	}
	// closes the writer too, flushing buffered rows
	defer client.Close()

	if err := like.CreateLikeEventsTable(ctx, client); err != nil {
		return err
	}

	writer, err := client.Writer()
	if err != nil {
		return err
	}
	if err := writer.Start(); err != nil {
		return err
	}

	consumer, err := kafka.NewConsumer(a.log, a.cfg.Kafka.Consumer)
	if err != nil {
		return err
	}

	relay := like.NewRelay(a.log, consumer, writer)
	if err := relay.Start(ctx); err != nil {
		_ = consumer.Close()
		return err
	}
	a.log.Info("relay started", zap.Strings("topics", a.cfg.Kafka.Consumer.Topics))

	<-ctx.Done()
	a.log.Info("relay stopping")
	return consumer.Close()
}
