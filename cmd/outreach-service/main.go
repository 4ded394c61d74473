package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/BidWorks/Outreach/internal/archive"
	"github.com/BidWorks/Outreach/internal/campaign"
	"github.com/BidWorks/Outreach/internal/channel"
	"github.com/BidWorks/Outreach/internal/config"
	"github.com/BidWorks/Outreach/internal/discovery"
	"github.com/BidWorks/Outreach/internal/httpserver"
	"github.com/BidWorks/Outreach/internal/models"
	"github.com/BidWorks/Outreach/internal/store"
	"github.com/BidWorks/Outreach/internal/strategy"
	"github.com/BidWorks/Outreach/internal/stream"
	"github.com/BidWorks/Outreach/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	st, closeStore, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("build store: %v", err)
	}
	defer closeStore()

	sender, sink, closeKafka := buildKafka(cfg)
	defer closeKafka()

	expander, err := buildExpander(cfg)
	if err != nil {
		log.Fatalf("build discovery: %v", err)
	}

	planner := strategy.New(cfg.ResponseRates, cfg.ContactCaps)
	orch := campaign.NewOrchestrator(st, sender, sink, cfg.Durations, cfg.MaxConcurrentSends)
	service := campaign.NewService(st, orch, planner, expander)
	tr := tracker.New(st)

	var archiver campaign.Archiver
	if cfg.ArchiveBucket != "" {
		a, err := archive.NewS3Archiver(context.Background(), cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			log.Fatalf("build archiver: %v", err)
		}
		archiver = a
	}

	runner := campaign.NewRunner(st, orch, service, archiver, sink, cfg.CheckInPoll)
	runCtx, cancelRunner := context.WithCancel(context.Background())
	go func() {
		if err := runner.Run(runCtx); err != nil && err != context.Canceled {
			log.Printf("check-in runner: %v", err)
		}
	}()

	server := httpserver.New(service, orch, tr, st)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("Outreach service listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("outreach server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, cancelRunner)
}

func buildStore(cfg config.Config) (store.Store, func(), error) {
	if cfg.StoreKind != "postgres" {
		return store.NewMemoryStore(), func() {}, nil
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store.NewPGStore(db), func() { db.Close() }, nil
}

func buildKafka(cfg config.Config) (channel.Sender, stream.Sink, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		log.Printf("no kafka brokers configured, using in-memory sender")
		return channel.NewMemorySender(), stream.NopSink{}, func() {}
	}

	outbound, err := stream.NewProducer(stream.ProducerConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.OutboundTopic})
	if err != nil {
		log.Fatalf("build outbound producer: %v", err)
	}
	events, err := stream.NewProducer(stream.ProducerConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.EventTopic})
	if err != nil {
		log.Fatalf("build event producer: %v", err)
	}
	closeAll := func() {
		_ = outbound.Close()
		_ = events.Close()
	}
	return channel.NewKafkaSender(outbound), stream.NewKafkaSink(events), closeAll
}

func buildExpander(cfg config.Config) (*discovery.Expander, error) {
	sources := map[models.Tier]discovery.Source{}
	for tier, url := range cfg.SourceURLs {
		if url == "" {
			continue
		}
		src, err := discovery.NewHTTPSource(discovery.HTTPSourceConfig{BaseURL: url, Retries: 1})
		if err != nil {
			return nil, err
		}
		sources[tier] = src
	}
	if len(sources) == 0 {
		log.Printf("no discovery sources configured, using empty static source")
		sources[models.TierC] = discovery.NewStaticSource()
	}
	tiered, err := discovery.NewTieredSource(sources)
	if err != nil {
		return nil, err
	}
	return discovery.NewExpander(tiered,
		discovery.WithStageRadii(cfg.StageRadii),
		discovery.WithStagePause(cfg.StagePause),
	), nil
}

func waitForShutdown(srv *http.Server, cancelRunner context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelRunner()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("outreach graceful shutdown: %v", err)
	}
}
