package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dishdash-backend/internal/bootstrap"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/registry"
)

func main() {
	proc := bootstrap.Start("outbox-publisher")

	dbClient := proc.Database()
	pubsubClient := proc.PubSub()

	eventRegistry, err := registry.NewEventRegistry(proc.Config.PubSub)
	proc.Must(err, "failed to build event registry")

	topics := newGCPTopics(pubsubClient)
	proc.OnClose("publishers", func() error { topics.Stop(); return nil })

	relay, err := NewRelay(RelayParams{
		Config:      proc.Config.Outbox,
		Logger:      proc.Logger,
		DB:          dbClient,
		Rows:        outbox.NewRepository(dbClient.DB()),
		DeadLetters: outbox.NewDeadLetters(),
		Resolver:    eventRegistry,
		Topics:      topics,
		Metrics:     metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	proc.Must(err, "failed to create outbox relay")

	proc.Go("relay", relay.Run)
	proc.ServeMetrics()
	proc.Wait()
}
