package bootstrap

import (
	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/config"
	"goladium-analytics/internal/ingestion"
)

// Sources builds every ingestion source enabled in cfg.
func Sources(cfg *config.Config, stores *Stores, logger logrus.FieldLogger) []ingestion.Source {
	var sources []ingestion.Source
	if cfg.KafkaEnabled() {
		sources = append(sources, ingestion.NewKafkaSource(ingestion.KafkaSourceOptions{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
			Logger:  logger,
		}))
	}
	if cfg.WSEnabled() {
		sources = append(sources, ingestion.NewWSLedgerSource(ingestion.WSLedgerSourceOptions{
			Endpoint:    cfg.LedgerWSEndpoint,
			CursorStore: stores.Cursors,
			Logger:      logger,
		}))
	}
	return sources
}

// Runner builds the ingestion runner over sources.
func Runner(cfg *config.Config, stores *Stores, writer *ingestion.Writer, sources []ingestion.Source, logger logrus.FieldLogger) *ingestion.Runner {
	return ingestion.NewRunner(ingestion.RunnerOptions{
		Sources:       sources,
		Writer:        writer,
		CursorStore:   stores.Cursors,
		BatchSize:     cfg.IngestBatchSize,
		FlushInterval: cfg.IngestFlushInterval,
		Logger:        logger,
	})
}
