// Command worker is the scheduled retention collector: it hard-deletes
// orders whose soft deletion is older than RETENTION_WINDOW.
package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/app"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/aws"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/metrics"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/orders"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx, cfg.AWSRegion, cfg.AWSEndpointOverride)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	store := docstore.New(clients.DynamoDB, docstore.WithLogger(logger))
	repo := orders.NewRepository(store, nil, nil, orders.RepositoryConfig{
		OrdersTable:  cfg.OrdersTable,
		CompanyIndex: cfg.OrdersCompanyIndex,
	}, logger)
	reporter := metrics.NewCloudWatchReporter(clients.CloudWatch, cfg.MetricsNamespace)
	collector := NewCollector(repo, reporter, cfg.RetentionWindow, cfg.AppEnv, logger)

	// RUN_LOCAL=true runs a single pass, for development against LocalStack.
	if cfg.RunLocal {
		report, err := collector.Run(ctx)
		if err != nil {
			logger.Error("local retention run failed", slog.Any("error", err))
		}
		logger.Info("local retention run", slog.Int("purged", report.Purged))
		return
	}

	lambda.Start(collector.Handle)
}
