// Command worker hosts the resident background loops for deployments
// that prefer one long-running process over cron: the followup cadence
// ticker, the retention sweeper, and the county bulletin watcher. The
// API server runs the same loops; run one or the other, not both, unless
// you want the send locks doing extra work.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	goslack "github.com/slack-go/slack"

	"github.com/acreage/leadline/internal/budget"
	"github.com/acreage/leadline/internal/bulletins"
	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/llm"
	"github.com/acreage/leadline/internal/pipeline"
	"github.com/acreage/leadline/internal/pkg/breaker"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/pkg/ratelimit"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/acreage/leadline/internal/service/followup"
	"github.com/acreage/leadline/internal/service/outreach"
	"github.com/acreage/leadline/internal/sms"
	"github.com/acreage/leadline/internal/twilio"
)

// slackNotices posts bulletin items to the market's alert channel.
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
	log.Println("Starting leadline worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Server.LogLevel)
	defer logger.Sync()

	store, err := postgres.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()
	log.Println("Connected to database")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	followups := followup.NewScheduler(cfg.Outreach, store.Leads, store.Owners, dispatcher)
	go followups.Run(ctx, 0)
	log.Println("Followup scheduler started")

	sweeper := pipeline.NewSweeper(cfg.Retention, pipeline.SweepStores{
		Timeline: store.Timeline,
		Tasks:    store.Tasks,
		Sheets:   store.Sheets,
	})
	go sweeper.Run(ctx)
	log.Println("Retention sweeper started")

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
		log.Printf("Bulletin watcher started (%d feeds)", len(cfg.Bulletins.Feeds))
	}

	// Heartbeat keeps container logs alive between sweeps.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Debug("worker heartbeat")
			}
		}
	}()

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()

	// Give the loops a moment to notice the cancel before the store closes.
	time.Sleep(2 * time.Second)

	log.Println("Worker stopped")
}
