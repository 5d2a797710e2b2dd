package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Kingmotro/pexel-platform/internal/api"
	"github.com/Kingmotro/pexel-platform/internal/config"
	"github.com/Kingmotro/pexel-platform/internal/game"
	"github.com/Kingmotro/pexel-platform/internal/logger"
	"github.com/Kingmotro/pexel-platform/internal/network"
	"github.com/Kingmotro/pexel-platform/internal/node"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Node.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("master failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	tlsCfg, err := network.ServerTLSConfig(network.TLSOptions{
		CertFile:   cfg.TLS.CertFile,
		KeyFile:    cfg.TLS.KeyFile,
		ServerName: cfg.TLS.ServerName,
	})
	if err != nil {
		return err
	}
	if cfg.TLS.CertFile == "" {
		log.Warn("no certificate configured, using a self-signed one", zap.String("host", cfg.TLS.ServerName))
	}

	opts := network.OptionsFromConfig(cfg)
	opts.TLS = tlsCfg

	index := game.NewIndex()
	transport := network.NewServer(log, opts, game.NewMaster(log, index))

	n := node.New("master", log)
	n.RegisterService(transport)
	if cfg.API.ListenAddr != "" {
		n.RegisterService(api.NewServer(log, cfg.API.ListenAddr, transport.Registry(), index))
	}

	if err := n.Start(); err != nil {
		return err
	}
	<-n.Context().Done()
	return nil
}
