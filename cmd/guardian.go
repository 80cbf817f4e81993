package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sentryhost/guardian/internal/utils"
	"github.com/sentryhost/guardian/pkg/backend"
	"github.com/sentryhost/guardian/pkg/brownout"
	"github.com/sentryhost/guardian/pkg/checks"
	"github.com/sentryhost/guardian/pkg/guardian"
	"github.com/sentryhost/guardian/pkg/killseq"
	"github.com/sentryhost/guardian/pkg/metrics"
	"github.com/sentryhost/guardian/pkg/serving"
	"github.com/sentryhost/guardian/pkg/status"
	"github.com/sentryhost/guardian/pkg/version"
	"github.com/spf13/viper"
)

func main() {
	// Define flags
	debug := flag.Bool("debug", false, "Enable debug logging")
	check := flag.Bool("check", false, "Run startup requirement checks and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetVersion())
		return
	}

	// Set the file name of the configurations file
	viper.SetConfigName("guardian")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".") // optionally look for config in the working directory

	// Read the configuration file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore the error
			log.Println("No config file found, proceeding with environment variables only.")
		} else {
			// Config file was found but another error occurred
			log.Fatalf("Error reading config file, %s", err)
		}
	}

	viper.AutomaticEnv()           // Read also environment variables
	viper.SetEnvPrefix("GUARDIAN") // Set a prefix for environment variables
	if *debug {
		viper.Set("debug", true)
	}

	logger := utils.NewLogger(viper.GetBool("debug"))
	logger.Info(version.GetVersion())

	if *check {
		if err := checks.CheckStartupRequirements(logger); err != nil {
			logger.Fatalf("Startup checks failed: %v", err)
		}
		logger.Info("Startup checks passed")
		return
	}

	guardianConfig, err := guardian.ConfigFromViper(nil)
	if err != nil {
		logger.Fatalf("Failed to load guardian config: %v", err)
	}
	metricsConfig, err := metrics.ConfigFromViper(nil)
	if err != nil {
		logger.Fatalf("Failed to load metrics config: %v", err)
	}
	servingConfig, err := serving.ConfigFromViper(nil)
	if err != nil {
		logger.Fatalf("Failed to load serving config: %v", err)
	}
	backendConfig, err := backend.ConfigFromViper(nil)
	if err != nil {
		logger.Fatalf("Failed to load backend config: %v", err)
	}
	brownoutConfig, err := brownout.ConfigFromViper(nil)
	if err != nil {
		logger.Fatalf("Failed to load brownout config: %v", err)
	}
	killseqConfig, err := killseq.ConfigFromViper(nil)
	if err != nil {
		logger.Fatalf("Failed to load killseq config: %v", err)
	}
	statusConfig, err := status.ConfigFromViper(nil)
	if err != nil {
		logger.Fatalf("Failed to load status config: %v", err)
	}

	checks.LogHardwareInventory(logger)

	servingClient := serving.NewHTTPClient(servingConfig, logger)
	procs := backend.NewProcessController(backendConfig, logger)
	health := backend.NewHealthClient(backendConfig, logger)
	collector := metrics.NewCollector(metricsConfig, procs, logger)
	brownoutManager := brownout.NewManager(brownoutConfig, servingClient, logger)
	sequence := killseq.NewSequence(killseqConfig, servingClient, procs, health, logger)
	limiter := killseq.NewRateLimiter(killseqConfig, logger)

	loop := guardian.NewLoop(guardianConfig, collector, brownoutManager, sequence, limiter, logger)
	statusServer := status.NewServer(statusConfig, loop, logger)

	// Cancellation is observed at tick boundaries; an in-flight kill
	// sequence always runs to completion first
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := statusServer.Run(ctx); err != nil {
			logger.Errorf("status server stopped: %v", err)
		}
	}()

	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatalf("guardian loop exited: %v", err)
	}
}
