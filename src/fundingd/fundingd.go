package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/communityfund/funding/src/fundingd/coin"
	"github.com/communityfund/funding/src/fundingd/config"
	"github.com/communityfund/funding/src/fundingd/data"
	"github.com/communityfund/funding/src/fundingd/discourse"
	"github.com/communityfund/funding/src/fundingd/ledger"
	"github.com/communityfund/funding/src/fundingd/proposals"
	"github.com/communityfund/funding/src/fundingd/tasks"
	"github.com/communityfund/funding/src/fundingd/webserver"
)

func main() {
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatalf("JWT_SECRET is not set")
	}

	db := data.MustMySQL(cfg.MySQLDSN)
	if err := data.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if err := data.LoadSettings(db); err != nil {
		log.Printf("Failed to load settings: %v", err)
	}

	rdb := data.MustRedis(cfg.RedisURL)

	provider := coin.NewClient(cfg.CoinRPCURL, cfg.CoinRPCUser, cfg.CoinRPCPass)
	reader := ledger.NewReader(provider, rdb, time.Duration(cfg.LedgerCacheTTL)*time.Second)

	var mirror proposals.Mirror
	if cfg.DiscourseEnabled {
		mirror = discourse.NewClient(cfg.DiscourseURL, cfg.DiscourseAPIKey, cfg.DiscourseUsername)
	}

	svc := proposals.NewService(db, reader, provider, mirror, proposals.Config{
		Ticker:             cfg.CoinTicker,
		SiteURL:            cfg.SiteURL,
		DiscourseEnabled:   cfg.DiscourseEnabled,
		DiscourseCategory:  cfg.DiscourseCategory,
		TopicTitleTemplate: data.GetSetting("discourse_topic_title", proposals.DefaultTopicTitleTemplate),
		TopicBodyTemplate:  data.GetSetting("discourse_topic_body", proposals.DefaultTopicBodyTemplate),
	})

	ctx, cancel := context.WithCancel(context.Background())

	go tasks.NewFundedTask(db, svc, time.Duration(cfg.FundingInterval)*time.Second).Run(ctx)

	router := webserver.New(cfg, db, svc)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Funding platform listening on port %s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancel()
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	_ = httpSrv.Shutdown(shutCtx)
}
