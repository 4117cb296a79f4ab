// Command scheduler runs one nightly pipeline pass and exits. Cron (or
// a systemd timer) owns the cadence; the cluster lock keeps overlapping
// invocations harmless.
//
// Exit codes: 0 on a normal pass, including "another instance holds the
// lock" and runs that finished with isolated step errors; 1 when the
// configuration cannot be loaded; 2 when the database is unreachable or
// the run could not start.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acreage/leadline/internal/budget"
	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/enrich"
	"github.com/acreage/leadline/internal/ingest"
	"github.com/acreage/leadline/internal/llm"
	"github.com/acreage/leadline/internal/pipeline"
	"github.com/acreage/leadline/internal/pkg/breaker"
	"github.com/acreage/leadline/internal/pkg/distlock"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/pkg/ratelimit"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/acreage/leadline/internal/ses"
	"github.com/acreage/leadline/internal/service/alerts"
	"github.com/acreage/leadline/internal/service/followup"
	"github.com/acreage/leadline/internal/service/outreach"
	"github.com/acreage/leadline/internal/service/resolve"
	"github.com/acreage/leadline/internal/service/scoring"
	"github.com/acreage/leadline/internal/sms"
	"github.com/acreage/leadline/internal/twilio"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		markets = flag.String("markets", "", "comma-separated market codes (default: all configured)")
		dryRun  = flag.Bool("dry-run", false, "simulate the outreach step's sends")
	)
	flag.Parse()

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Printf("invalid config: %v", err)
		return 1
	}
	if cfg.Database.URL == "" {
		log.Printf("invalid config: DATABASE_URL is not set")
		return 1
	}

	logger.Init(cfg.Server.LogLevel)
	defer logger.Sync()

	store, err := postgres.Open(cfg.Database)
	if err != nil {
		log.Printf("database unreachable: %v", err)
		return 2
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A signal cancels cooperatively: the step in flight finishes,
	// everything after it is skipped, and the task row ends cancelled.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("signal received, cancelling nightly run")
		cancel()
	}()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis unreachable, using store-backed SMS budget: %v", err)
			rdb = nil
		}
		pingCancel()
		if rdb != nil {
			defer rdb.Close()
		}
	}
	var smsBudget budget.Budget
	if rdb != nil {
		smsBudget = budget.NewRedisBudget(rdb, cfg.Outreach.MaxSMSPerDay)
	} else {
		smsBudget = budget.NewStoreBudget(store.Attempts, cfg.Outreach.MaxSMSPerDay)
	}

	gateway := twilio.NewClient(cfg.Twilio)
	model := llm.NewClient(cfg.OpenAI)
	breakers := breaker.NewManager(uint32(cfg.Breaker.FailureThreshold),
		time.Duration(cfg.Breaker.RecoveryTimeoutSeconds)*time.Second)
	templates := sms.NewEngine()

	perMinute := int(cfg.Twilio.MessagesPerSecond * 60)
	if perMinute < 1 {
		perMinute = 1
	}

	dispatcher := outreach.NewDispatcher(cfg.Outreach, outreach.Stores{
		Leads:    store.Leads,
		Owners:   store.Owners,
		Parcels:  store.Parcels,
		Parties:  store.Parties,
		Attempts: store.Attempts,
		Timeline: store.Timeline,
	}, gateway, templates)
	dispatcher.SetBudget(smsBudget)
	dispatcher.SetRateLimiter(ratelimit.NewBucket(perMinute, time.Minute))
	dispatcher.SetBreakers(breakers)
	if model.Enabled() {
		dispatcher.SetDrafter(model)
	}

	pool := outreach.NewPool(dispatcher, cfg.Outreach.Workers, cfg.Outreach.QueueSize)
	pool.Start(ctx)
	defer pool.Stop()

	sinks := []alerts.Sink{alerts.NewTwilioSink(gateway)}
	if cfg.Slack.Token != "" {
		sinks = append(sinks, alerts.NewSlackSink(cfg.Slack))
	}
	if cfg.SES.FromEmail != "" {
		sesClient, err := ses.NewClient(ctx, cfg.SES)
		if err != nil {
			log.Printf("Warning: SES unavailable, alert emails disabled: %v", err)
		} else {
			sinks = append(sinks, alerts.NewEmailSink(sesClient))
		}
	}
	alertSvc := alerts.NewService(cfg.Alerts, alerts.Stores{
		Leads:   store.Leads,
		Owners:  store.Owners,
		Parcels: store.Parcels,
		Parties: store.Parties,
		Configs: store.Alerts,
	}, sinks...)

	resolver := resolve.NewResolver(store.Parcels, store.Parties, store.Owners, store.Leads)
	scorer := scoring.NewService(scoring.NewEngine(cfg.Scoring),
		store.Leads, store.Parcels, store.Owners, store.Parties)

	verifier, geocoder, lookup := enrich.Adapters(cfg.Enrichment)
	enricher := enrich.NewService(enrich.Stores{
		Parcels: store.Parcels,
		Parties: store.Parties,
	}, verifier, geocoder, lookup)

	var rollSources []ingest.Source
	if wantsS3(cfg.Markets) {
		s3src, err := ingest.NewS3Source(ctx, cfg.Ingest)
		if err != nil {
			log.Printf("Warning: S3 roll source unavailable: %v", err)
		} else {
			rollSources = append(rollSources, s3src)
		}
	}
	ingestor := ingest.NewIngestor(cfg.Ingest, resolver, rollSources...)

	followups := followup.NewScheduler(cfg.Outreach, store.Leads, store.Owners, dispatcher)

	hostname, _ := os.Hostname()
	holder := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	lock := distlock.NewStoreLock(store.DB, pipeline.LockName, holder,
		time.Duration(cfg.Pipeline.LockTTLMinutes)*time.Minute)

	orchestrator := pipeline.NewOrchestrator(cfg, pipeline.Deps{
		Lock:      lock,
		Tasks:     store.Tasks,
		Leads:     store.Leads,
		Ingestor:  ingestor,
		Enricher:  enricher,
		Scorer:    scorer,
		Sender:    pool,
		Followups: followups,
		Alerter:   alertSvc,
		Budget:    smsBudget,
	})

	opts := pipeline.Options{DryRun: *dryRun}
	if *markets != "" {
		for _, code := range strings.Split(*markets, ",") {
			if code = strings.TrimSpace(code); code != "" {
				opts.Markets = append(opts.Markets, code)
			}
		}
	}

	res, err := orchestrator.Run(ctx, opts)
	if err != nil {
		if errors.Is(err, pipeline.ErrLockNotAcquired) {
			logger.Info("nightly pipeline already running elsewhere, nothing to do")
			return 0
		}
		logger.Error("nightly run could not start", "error", err)
		return 2
	}

	logger.Info("nightly run finished",
		"task_id", res.TaskID,
		"status", string(res.Status),
		"markets", len(res.Markets),
		"step_errors", len(res.StepErrors))
	for _, se := range res.StepErrors {
		logger.Warn("step error", "market", se.Market, "step", se.Step, "error", se.Error)
	}
	return 0
}

// wantsS3 reports whether any market pulls its assessment rolls from S3.
func wantsS3(markets []config.MarketConfig) bool {
	for _, m := range markets {
		for _, src := range m.RollSources {
			if strings.HasPrefix(src, "s3://") {
				return true
			}
		}
	}
	return false
}
