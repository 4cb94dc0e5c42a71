package main

import (
	"context"
	"log/slog"
	"newschat/app/api"
	"newschat/app/client/newsapi"
	"newschat/app/client/rss"
	"newschat/app/client/scrape"
	"newschat/app/config"
	"newschat/app/service/conversation"
	"newschat/app/service/engine"
	"newschat/app/service/generate"
	"newschat/app/service/intent"
	"newschat/app/service/news"
	"newschat/app/service/variety"
	"newschat/app/service/verify"
	"newschat/app/util/mylog"
	"os"
	"os/signal"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	if !cfg.Configured() {
		slog.Warn("Provider credentials are missing, the API will answer 503 until they are set")
	}

	do.Provide(di, newsapi.NewClient)
	do.Provide(di, rss.NewClient)
	do.Provide(di, scrape.NewClient)
	do.Provide(di, intent.New)
	do.Provide(di, verify.New)
	do.Provide(di, conversation.New)
	do.Provide(di, generate.New)
	do.Provide(di, news.New)
	do.Provide(di, variety.New)
	do.Provide(di, engine.New)
	do.Provide(di, api.New)

	slog.Info("Service started")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	go do.MustInvoke[*conversation.Service](di).RunSweepLoop(appCtx)
	go do.MustInvoke[*news.Service](di).RunPollLoop(appCtx)

	if err = do.MustInvoke[*api.Server](di).Run(appCtx); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
