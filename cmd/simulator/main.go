package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var (
	serverURL = flag.String("server", "ws://localhost:9000/pile-link", "pile-link server WebSocket URL")
	pileID    = flag.String("id", "A", "Pile ID")
	pileType  = flag.String("type", "fast", "Pile type (fast|trickle)")
	powerKW   = flag.Float64("power", 30.0, "Charging power (kW)")
	heartbeat = flag.Duration("heartbeat", 10*time.Second, "Heartbeat interval")
	verbose   = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	config := &SimulatorConfig{
		ServerURL:         *serverURL,
		PileID:            *pileID,
		PileType:          *pileType,
		PowerKW:           *powerKW,
		HeartbeatInterval: *heartbeat,
		ProgressInterval:  time.Second,
	}

	simulator := NewSimulator(config, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down simulator...")
		simulator.Stop()
		os.Exit(0)
	}()

	if err := simulator.Connect(); err != nil {
		logger.Fatal("Failed to connect to server", zap.Error(err))
	}

	fmt.Printf("Charging pile simulator started\n")
	fmt.Printf("  ID: %s (%s, %.0f kW)\n", *pileID, *pileType, *powerKW)
	fmt.Printf("  Server: %s\n", *serverURL)
	fmt.Println("\nPress Ctrl+C to stop")

	select {}
}
