package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/capture"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/chime"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/codec"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/controlplane"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/hub"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/hubcfg"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/httpapi"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/mcast"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/piper"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/store"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/tts"
)

func main() {
	configPath := flag.String("config", "/data/config.json", "path to config.json")
	dataDir := flag.String("data-dir", "/data", "root of persisted chime files (chimes/)")
	dbPath := flag.String("db", "hub.db", "SQLite database path")
	apiAddr := flag.String("api-addr", ":8080", "diagnostics/chime HTTP API listen address")
	wsAddr := flag.String("ws-addr", ":8099", "Web PTT WebSocket listen address")
	iface := flag.String("iface", "eth0", "LAN interface for multicast TX/RX")
	ttsAddr := flag.String("tts-addr", "", "Piper TTS TCP address (host:port); empty disables the TTS Bridge")
	flag.Parse()

	logLevel := new(slog.LevelVar)
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	cfg, err := hubcfg.Load(*configPath)
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}
	switch cfg.LogLevel {
	case hubcfg.LogDebug:
		logLevel.Set(slog.LevelDebug)
	case hubcfg.LogWarning:
		logLevel.Set(slog.LevelWarn)
	case hubcfg.LogError:
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}

	st, err := store.Open(*dbPath, log)
	if err != nil {
		log.Error("store open failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	cdc, err := codec.New()
	if err != nil {
		log.Error("codec init failed", "error", err)
		os.Exit(1)
	}

	chimesDir := filepath.Join(*dataDir, "chimes")
	if err := os.MkdirAll(chimesDir, 0o755); err != nil {
		log.Error("create chimes dir failed", "error", err)
		os.Exit(1)
	}
	chimes := chime.New(chimesDir, cdc, st.SetActiveChime, log)
	if err := chimes.LoadAll(); err != nil {
		log.Error("chime store load failed", "error", err)
		os.Exit(1)
	}
	if active, ok, err := st.ActiveChime(); err == nil && ok {
		if err := chimes.SetActive(active); err != nil {
			log.Warn("restore active chime failed", "name", active, "error", err)
		}
	}

	sender, err := mcast.NewSender(cfg.MulticastGroup, cfg.MulticastPort, *iface, log)
	if err != nil {
		log.Error("multicast sender init failed", "error", err)
		os.Exit(1)
	}
	receiver, err := mcast.NewReceiver(cfg.MulticastGroup, cfg.MulticastPort, *iface, log)
	if err != nil {
		log.Error("multicast receiver init failed", "error", err)
		os.Exit(1)
	}

	var synth tts.Synthesizer
	if *ttsAddr != "" {
		synth = piper.New(*ttsAddr)
	}

	h := hub.New(hub.Deps{
		Config:   cfg,
		Codec:    cdc,
		Store:    st,
		Chimes:   chimes,
		Sender:   sender,
		Receiver: receiver,
		Synth:    synth,
		Log:      log,
	})
	defer h.Close()

	if err := h.ConnectControlPlane(controlplane.Config{
		Host:     cfg.MQTTHost,
		Port:     cfg.MQTTPort,
		Username: cfg.MQTTUser,
		Password: cfg.MQTTPassword,
		ClientID: "hub-" + cfg.DeviceName,
	}); err != nil {
		log.Error("mqtt connect failed", "error", err)
		os.Exit(1)
	}
	h.Control.PublishHADiscovery(cfg.DeviceName, cfg.DeviceName)

	api := httpapi.New(chimes, h.Capture, h.Tracker, h.TTS, log.With("component", "httpapi"))

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	go func() {
		if err := api.Run(ctx, *apiAddr); err != nil {
			log.Error("http api server failed", "error", err)
		}
	}()

	go func() {
		log.Info("web ptt listening", "addr", *wsAddr)
		if err := h.WebPTT.Run(ctx, *wsAddr); err != nil {
			log.Error("web ptt server failed", "error", err)
		}
	}()

	h.Run(ctx)
}
