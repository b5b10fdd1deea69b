package main

import (
	"fmt"
	"net/http"
	"os"

	"streamplex/pkg/initialization"
	"streamplex/pkg/logger"
	"streamplex/pkg/stremio"

	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "0.1.0"

func main() {
	// Load environment variables for logger and bootstrap
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	// Initialize Logger early so bootstrap can use it
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}
	logger.Init(logLevel)

	logger.Info("Starting StreamPlex", "version", Version)

	// Bootstrap application
	comp, err := initialization.Bootstrap()
	if err != nil {
		initialization.WaitForInputAndExit(err)
	}

	cfg := comp.Config
	defer comp.Loader.Close()

	// Initialize Stremio addon server with counted stream source
	stremioServer := stremio.NewServer(comp.Metrics.Instrument(comp.Aggregator), Version)
	stremioServer.SetAPIHandler(comp.APIServer.Handler())

	// Setup HTTP routes
	mux := http.NewServeMux()
	stremioServer.SetupRoutes(mux)

	addr := fmt.Sprintf(":%d", cfg.AddonPort)

	logger.Info("Stremio manifest URL", "url", fmt.Sprintf("%s/manifest.json", cfg.AddonBaseURL))

	if err := http.ListenAndServe(addr, mux); err != nil {
		initialization.WaitForInputAndExit(fmt.Errorf("server failed: %v", err))
	}
}
