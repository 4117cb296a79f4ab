package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	goslack "github.com/slack-go/slack"

	"github.com/acreage/leadline/internal/api"
	"github.com/acreage/leadline/internal/budget"
	"github.com/acreage/leadline/internal/bulletins"
	"github.com/acreage/leadline/internal/comps"
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
	"github.com/acreage/leadline/internal/service/buyers"
	"github.com/acreage/leadline/internal/service/conversation"
	"github.com/acreage/leadline/internal/service/dealsheet"
	"github.com/acreage/leadline/internal/service/followup"
	"github.com/acreage/leadline/internal/service/outreach"
	"github.com/acreage/leadline/internal/service/resolve"
	"github.com/acreage/leadline/internal/service/scoring"
	"github.com/acreage/leadline/internal/sms"
	"github.com/acreage/leadline/internal/twilio"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
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

// slackNotices posts bulletin items to the market's alert channel. The
// channel comes from the market's alert config row; markets without one
// keep notices as task records only.
type slackNotices struct {
	api     *goslack.Client
	configs *postgres.AlertConfigRepo
}

func (s *slackNotices) Notify(ctx context.Context, n bulletins.Notice) error {
	ac, err := s.configs.GetByMarket(ctx, n.Market)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil
		}
		return err
	}
	if ac.SlackChannel == nil || *ac.SlackChannel == "" {
		return nil
	}
	text := fmt.Sprintf(":newspaper: [%s] %s", n.Market, n.Title)
	if n.Link != "" {
		text += "\n" + n.Link
	}
	_, _, err = s.api.PostMessageContext(ctx, *ac.SlackChannel, goslack.MsgOptionText(text, false))
	return err
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	logger.Init(cfg.Server.LogLevel)
	defer logger.Sync()

	// Pre-flight check: verify the target port is available.
	if err := checkPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	store, err := postgres.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is optional. Without it the SMS budget falls back to counting
	// attempt rows, which is correct but slower under load.
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
	}

	var smsBudget budget.Budget
	if rdb != nil {
		smsBudget = budget.NewRedisBudget(rdb, cfg.Outreach.MaxSMSPerDay)
	} else {
		smsBudget = budget.NewStoreBudget(store.Attempts, cfg.Outreach.MaxSMSPerDay)
	}

	gateway := twilio.NewClient(cfg.Twilio)
	model := llm.NewClient(cfg.OpenAI)
	if !model.Enabled() {
		log.Println("LLM drafting disabled (no API key): template sends and keyword classification only")
	}
	breakers := breaker.NewManager(uint32(cfg.Breaker.FailureThreshold),
		time.Duration(cfg.Breaker.RecoveryTimeoutSeconds)*time.Second)
	templates := sms.NewEngine()

	// Twilio's rate is configured per second; the bucket meters per minute
	// so sub-1/s rates still map to a whole number of sends.
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

	var replier conversation.Replier
	if model.Enabled() {
		replier = model
	}
	classifier := conversation.NewClassifier(replier, breakers)
	convEngine := conversation.NewEngine(cfg.Outreach, conversation.Stores{
		Owners:   store.Owners,
		Leads:    store.Leads,
		Inbound:  store.Inbound,
		Attempts: store.Attempts,
		Timeline: store.Timeline,
	}, classifier, gateway, templates)

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
	convEngine.SetAlerter(alertSvc)

	var compsSrc dealsheet.CompsSource
	if cfg.Enrichment.EnableComps {
		compsClient, err := comps.NewClient(cfg.Comps)
		if err != nil {
			log.Printf("Warning: comps warehouse unavailable, offers fall back to assessed values: %v", err)
		} else {
			compsSrc = compsClient
		}
	}
	sheets := dealsheet.NewService(cfg.DealSheet, dealsheet.Stores{
		Leads:   store.Leads,
		Parcels: store.Parcels,
		Sheets:  store.Sheets,
	}, compsSrc)
	if model.Enabled() {
		sheets.SetDescriber(model, breakers)
	}

	buyersSvc := buyers.NewService(cfg.Buyers, cfg.Outreach.DryRun, buyers.Stores{
		Buyers:   store.Buyers,
		Deals:    store.Deals,
		Leads:    store.Leads,
		Attempts: store.Attempts,
		Timeline: store.Timeline,
	}, sheets, templates, gateway, ratelimit.NewBucket(perMinute, time.Minute))

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

	server := api.NewServer(cfg, api.Deps{
		DB:        store.DB,
		Leads:     store.Leads,
		Timeline:  store.Timeline,
		Tasks:     store.Tasks,
		Attempts:  store.Attempts,
		Buyers:    store.Buyers,
		Parcels:   store.Parcels,
		Owners:    store.Owners,
		Parties:   store.Parties,
		Resolver:  resolver,
		Scorer:    scorer,
		Sender:    dispatcher,
		Pool:      pool,
		Pipeline:  orchestrator,
		Sheets:    sheets,
		Blaster:   buyersSvc,
		Inbound:   convEngine,
		Facts:     enricher,
		Budget:    smsBudget,
		Templates: templates,
	})

	// Resident cadence loop: followups go out during the day, not only
	// when the nightly pipeline runs.
	go followups.Run(ctx, 0)

	if cfg.Bulletins.Enabled {
		var notifier bulletins.Notifier
		if cfg.Slack.Token != "" {
			notifier = &slackNotices{
				api:     goslack.New(cfg.Slack.Token, goslack.OptionAPIURL(cfg.Slack.BaseURL)),
				configs: store.Alerts,
			}
		}
		watcher := bulletins.NewWatcher(cfg.Bulletins, bulletins.Stores{
			Feeds: store.Feeds,
			Tasks: store.Tasks,
		}, notifier)
		go watcher.Run(ctx)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	logger.Info("all services initialized, server ready",
		"markets", len(cfg.Markets), "dry_run", cfg.Outreach.DryRun)

	<-done
	logger.Info("shutting down")

	// Stop accepting new requests first, then drain background work.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	cancel()
	pool.Stop()

	if rdb != nil {
		rdb.Close()
	}
	logger.Info("server stopped")
}
