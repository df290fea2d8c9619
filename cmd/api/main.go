// Command api serves the order engine over HTTP, as a local server or behind
// API Gateway on Lambda.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/app"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/aws"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/catalog"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/events"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/handlers"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/idempotency"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/metrics"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/orders"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/sequence"
)

type routerDeps struct {
	handlers handlers.HandlerConfig
	http     *metrics.Server
	gatherer prometheus.Gatherer
}

func setupRouter(deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if deps.http != nil {
		r.Use(deps.http.Middleware())
	}

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(deps.gatherer)))
	}

	handlers.RegisterOrdersRoutes(r, deps.handlers)

	return r
}

func buildDeps(cfg *app.Config, clients *aws.AWSClients, logger *slog.Logger, reg *prometheus.Registry) routerDeps {
	engineMetrics := metrics.NewEngine(reg)

	store := docstore.New(clients.DynamoDB,
		docstore.WithMaxAttempts(cfg.TxMaxAttempts),
		docstore.WithBackoff(cfg.TxBackoff),
		docstore.WithLogger(logger),
		docstore.WithObserver(engineMetrics.ObserveTransaction),
	)
	repo := orders.NewRepository(store,
		sequence.NewCounter(store, cfg.SequencesTable),
		catalog.NewReader(store, cfg.ProductsTable),
		orders.RepositoryConfig{OrdersTable: cfg.OrdersTable, CompanyIndex: cfg.OrdersCompanyIndex},
		logger)

	opts := []orders.ServiceOption{orders.WithLogger(logger), orders.WithMetrics(engineMetrics)}
	if cfg.OrderEventsQueueURL != "" {
		publisher := aws.NewPublisher(clients.SQS, cfg.OrderEventsQueueURL)
		opts = append(opts, orders.WithPublisher(events.NewSQSPublisher(publisher)))
	}
	svc := orders.NewService(repo, orders.ServiceConfig{
		Location:     cfg.Location(),
		MaxDaysAhead: cfg.MaxDaysAhead(),
		Currency:     cfg.DefaultCurrency,
	}, opts...)

	return routerDeps{
		handlers: handlers.HandlerConfig{
			Service:         svc,
			Idempotency:     idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
			DefaultCurrency: cfg.DefaultCurrency,
			Logger:          logger,
		},
		http:     metrics.NewServer(reg, "api"),
		gatherer: reg,
	}
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := app.NewLogger(cfg)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion, cfg.AWSEndpointOverride)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r := setupRouter(buildDeps(cfg, clients, logger, reg))

	// if RUN_LOCAL is true, run local HTTP server for development.
	if cfg.RunLocal {
		logger.Info("running local server", slog.String("addr", cfg.AppAddr))
		if err := r.Run(cfg.AppAddr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req lambdaevents.APIGatewayProxyRequest) (lambdaevents.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
