package main

import (
	"flag"
	"log"
	"os"

	"MempoolOracle/internal/di"
	"MempoolOracle/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "config file path (defaults only when empty)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s feed=%s endpoint=%s network=%s", cfg.Environment, cfg.Feed.Type, cfg.Feed.Endpoint, cfg.Feed.Network)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
