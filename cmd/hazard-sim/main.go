// Command hazard-sim runs the hazard simulation, exchanges sensor readings
// and commands with an MQTT controller and serves the control API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/hazard-sim/internal/command"
	"github.com/sweeney/hazard-sim/internal/config"
	"github.com/sweeney/hazard-sim/internal/console"
	"github.com/sweeney/hazard-sim/internal/hazard"
	"github.com/sweeney/hazard-sim/internal/logger"
	"github.com/sweeney/hazard-sim/internal/mqtt"
	"github.com/sweeney/hazard-sim/internal/publish"
	"github.com/sweeney/hazard-sim/internal/status"
	"github.com/sweeney/hazard-sim/internal/web"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML config file (optional; HAZARD_* env vars override)")
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Get(logger.InfoLevel, logger.FormatConsole).Fatalw("config_load_failed", "path", *configPath, "err", err)
	}

	if *printConfig {
		data, err := cfg.YAML()
		if err != nil {
			logger.Get(logger.InfoLevel, logger.FormatConsole).Fatalw("config_dump_failed", "err", err)
		}
		os.Stdout.Write(data)
		return
	}

	log := logger.Get(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatalw("fatal", "err", err)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = mqtt.NewClientID()
	}
	mqttOpts := cfg.MQTTOptions()
	mqttOpts.ClientID = clientID

	store := hazard.NewStore()
	cons := console.New(cfg.Console.MaxEntries, nil)
	store.Subscribe(cons.OnNotification)

	tracker := status.NewTracker(time.Now(), cfg.StatusConfig(clientID), cfg.Telemetry.TTL)

	interp := command.NewInterpreter(store, nil)
	interp.OnCommand(cons.OnCommand)
	interp.OnCommand(tracker.SetLastCommand)

	cons.System("Simulation started")
	cons.MQTT("Connecting to " + mqttOpts.Broker + " as " + clientID)

	bridge := mqtt.NewRealBridge(mqttOpts, &bridgeHandler{
		interp:  interp,
		tracker: tracker,
		console: cons,
		log:     log,
	}, log.Component("mqtt"))
	defer bridge.Close()

	sched := publish.NewScheduler(store, bridge, cfg.Publish.Interval, cfg.Publish.Guard, log.Component("publish"))

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, web.Deps{
			Store:     store,
			Interp:    interp,
			Tracker:   tracker,
			Console:   cons,
			Publisher: bridge,
			Log:       log.Component("http"),
		}, web.Options{
			RateLimit:  rate.Limit(cfg.HTTP.RateLimitPerSec),
			RateBurst:  cfg.HTTP.RateBurst,
			WSInterval: cfg.HTTP.WSInterval,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http_server_error", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warnw("http_shutdown_failed", "err", err)
			}
		}()
		log.Infow("http_listening", "addr", cfg.HTTP.Addr)
	}

	d := &daemon{
		store:   store,
		sched:   sched,
		bridge:  bridge,
		tracker: tracker,
		console: cons,
		log:     log,
	}
	d.startup(time.Now())

	log.Infow("started",
		"broker", mqttOpts.Broker,
		"client_id", clientID,
		"decay_interval", cfg.Sim.DecayInterval,
		"publish_interval", cfg.Publish.Interval,
	)

	decay := time.NewTicker(cfg.Sim.DecayInterval)
	defer decay.Stop()
	pub := time.NewTicker(cfg.Publish.Interval)
	defer pub.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return d.runLoop(context.Background(), time.Now, decay.C, pub.C, sigCh)
}
