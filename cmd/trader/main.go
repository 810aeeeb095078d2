package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/api"
	"main/internal/broker"
	"main/internal/dispatch"
	"main/internal/engine"
	"main/internal/intent"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/store"
	"main/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	autostart := flag.Bool("autostart", false, "Start the trading loop immediately")
	flag.Parse()

	// Missing .env is fine; env vars may come from the host.
	_ = godotenv.Load()
	startProfiler()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	st, err := openStore(loaded.Store)
	if err != nil {
		log.Fatalf("open store failed: %v", err)
	}
	defer st.Close()

	pacing := obs.NewPacing(loaded.Pacing.MaxRPM, loaded.Pacing.WindowSeconds)
	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Workers:  loaded.Dispatch.Workers,
		QueueCap: loaded.Dispatch.QueueCap,
		Pacing:   pacing,
	})
	dispatcher.Start()
	defer dispatcher.Stop()

	delegator := broker.NewRestDelegator(http.DefaultClient, broker.RestConfig{
		BaseURL:   loaded.Broker.BaseURL,
		APIKey:    loaded.Broker.APIKey,
		APISecret: loaded.Broker.APISecret,
		Timeout:   time.Duration(loaded.Broker.TimeoutSeconds) * time.Second,
	}, dispatcher.UpdateFromHeaders)

	eng := engine.New(st, delegator, dispatcher, intent.NewPreopenQueue(), pacing, engine.Config{
		MarketOpen:   loaded.MarketOpen,
		LoopInterval: time.Duration(loaded.Loop.IntervalSeconds) * time.Second,
	})
	sup := supervisor.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if loaded.Pacing.SnapshotPath != "" && loaded.Pacing.PublishIntervalSeconds > 0 {
		go pacing.Publish(ctx, loaded.Pacing.SnapshotPath,
			time.Duration(loaded.Pacing.PublishIntervalSeconds)*time.Second)
	}

	if loaded.Broker.StreamURL != "" {
		if err := startUpdateStream(ctx, loaded.Broker.StreamURL, eng); err != nil {
			logs.Errorf("start broker update stream, err: %+v", err)
		}
	}

	if *autostart {
		if err := sup.Start(eng.RunLoop); err != nil {
			log.Fatalf("start trading loop failed: %v", err)
		}
	}

	srv := api.NewServer(st, eng, sup, pacing)
	go func() {
		if err := srv.Start(loaded.API.Addr); err != nil {
			logs.Errorf("control api stopped, err: %+v", err)
		}
	}()

	<-sys.Shutdown()
	logs.Info("shutting down")
	sup.Stop()
	if !sup.Join(5 * time.Second) {
		logs.Errorf("trading loop did not exit before deadline")
	}
}

func openStore(cfg ops.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "bolt":
		return store.NewBoltStore(cfg.Path)
	case "postgres":
		return store.NewPgStore(store.PgOption{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Database,
			SSLMode:  cfg.SSLMode,
		})
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

func startUpdateStream(ctx context.Context, url string, eng *engine.Engine) error {
	stream := broker.NewUpdateStream(ctx, url)
	if err := stream.StartWebsocket(ctx); err != nil {
		return err
	}
	if err := stream.SubscribeTradeUpdates(ctx); err != nil {
		stream.Close()
		return err
	}
	stream.ObserveUpdates(ctx, func(u broker.Update) {
		if err := eng.RecordUpdate(u); err != nil {
			logs.Errorf("record broker update, err: %+v", err)
		}
	})
	return nil
}

func startProfiler() {
	addr := os.Getenv("PYROSCOPE_SERVER_ADDRESS")
	if addr == "" {
		return
	}
	_, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "trader",
		ServerAddress:   addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		log.Fatalf("pyroscope start failed: %v", err)
	}
}
