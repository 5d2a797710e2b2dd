package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Kingmotro/pexel-platform/internal/arena"
	"github.com/Kingmotro/pexel-platform/internal/config"
	"github.com/Kingmotro/pexel-platform/internal/logger"
	"github.com/Kingmotro/pexel-platform/internal/network"
	"github.com/Kingmotro/pexel-platform/internal/node"
)

// arenaSpacing separates the default regions of hosted arenas along X.
const arenaSpacing = 256

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

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
		log.Fatal("slave failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	tlsCfg, err := network.ClientTLSConfig(network.TLSOptions{
		CAFile:             cfg.TLS.CAFile,
		ServerName:         cfg.TLS.ServerName,
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
	})
	if err != nil {
		return err
	}

	opts := network.ClientOptionsFromConfig(cfg)
	opts.TLS = tlsCfg
	link := network.NewClient(log, opts, network.HandlerFunc(func(peer *network.PeerInfo, payload []byte) {
		log.Debug("payload from master", zap.String("peer", peer.Name()), zap.Int("size", len(payload)))
	}))

	specs := make([]arena.Spec, 0, len(cfg.Arena.Games))
	for i, g := range cfg.Arena.Games {
		x := i * arenaSpacing
		specs = append(specs, arena.Spec{
			Minigame: g.Minigame,
			Tag:      g.Tag,
			Region:   arena.NewCuboidRegion("world", arena.Vec3{X: x, Y: 0, Z: 0}, arena.Vec3{X: x + 127, Y: 255, Z: 127}),
		})
	}
	host := arena.NewHost(log, link, specs, cfg.Arena.CountdownSeconds,
		arena.WithTickInterval(cfg.Arena.CountdownInterval))

	n := node.New(cfg.Node.Name, log)
	n.RegisterService(link)
	n.RegisterService(host)
	if err := n.Start(); err != nil {
		return err
	}

	select {
	case <-n.Context().Done():
	case <-link.Done():
		log.Warn("lost connection to master")
		n.Stop()
	}
	return nil
}
