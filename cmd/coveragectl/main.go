// Package main provides the coveragectl CLI for the radar coverage service.
//
// Usage:
//
//	coveragectl serve              # Start the consumer HTTP API
//	coveragectl viewshed --lat --lon --height-agl-m --max-range-m
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/skywave-radar/coverage/internal/config"
	"github.com/skywave-radar/coverage/internal/coverage"
	"github.com/skywave-radar/coverage/internal/geom"
	"github.com/skywave-radar/coverage/internal/httpapi"
	"github.com/skywave-radar/coverage/internal/orchestrator"
	"github.com/skywave-radar/coverage/internal/radarphys"
	"github.com/skywave-radar/coverage/internal/terrain"
	"github.com/skywave-radar/coverage/internal/viewshed"
)

var (
	verbose        bool
	originsCSV     string
	vsLat, vsLon   float64
	vsHeightAGL    float64
	vsMaxRangeM    float64
	vsKFactor      float64
	assetsOverride string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coveragectl",
		Short: "Operate the radar coverage service",
		Long: `coveragectl runs and probes the radar coverage service.

This command:
  1. Loads terrain tiles from an assets directory (SRTM/HGT format)
  2. Serves the consumer HTTP API (radar set management, coverage lookup, metrics)
  3. Can compute a single viewshed from the command line for diagnostics`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the consumer HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&originsCSV, "cors-origins", "*", "Comma-separated list of allowed CORS origins")
	serveCmd.Flags().StringVar(&assetsOverride, "assets-root", "", "Override RADAR_ASSETS_ROOT")

	viewshedCmd := &cobra.Command{
		Use:   "viewshed",
		Short: "Compute and print a single viewshed horizon profile",
		RunE:  runViewshed,
	}
	viewshedCmd.Flags().Float64Var(&vsLat, "lat", 0, "Observer latitude (degrees)")
	viewshedCmd.Flags().Float64Var(&vsLon, "lon", 0, "Observer longitude (degrees)")
	viewshedCmd.Flags().Float64Var(&vsHeightAGL, "height-agl-m", 30, "Observer antenna height above ground (meters)")
	viewshedCmd.Flags().Float64Var(&vsMaxRangeM, "max-range-m", 100_000, "Maximum horizon range to trace (meters)")
	viewshedCmd.Flags().Float64Var(&vsKFactor, "k-factor", radarphys.DefaultKFactor, "Refraction k-factor")
	viewshedCmd.Flags().StringVar(&assetsOverride, "assets-root", "", "Override RADAR_ASSETS_ROOT")

	rootCmd.AddCommand(serveCmd, viewshedCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if assetsOverride != "" {
		cfg.AssetsRoot = assetsOverride
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := terrain.NewStore(cfg.AssetsRoot, cfg.TerrainCacheCapacity)
	if err != nil {
		return fmt.Errorf("open terrain store at %s: %w", cfg.AssetsRoot, err)
	}

	orch := orchestrator.New(store, cfg.ViewshedWorkers)

	cache, err := coverage.NewCache(cfg.CoverageCacheCapacity)
	if err != nil {
		return fmt.Errorf("new coverage cache: %w", err)
	}

	srv := &httpapi.Server{
		Orchestrator:     orch,
		Cache:            cache,
		RadiusM:          cfg.DefaultRadiusM,
		GatewayVerifyKey: cfg.GatewayVerifyKey,
	}

	origins := splitOrigins(originsCSV)
	httpSrv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.NewRouter(origins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting coverage service",
			"addr", cfg.Addr(),
			"assets_root", cfg.AssetsRoot,
			"terrain_cache_capacity", cfg.TerrainCacheCapacity,
			"coverage_cache_capacity", cfg.CoverageCacheCapacity,
			"viewshed_workers", cfg.ViewshedWorkers,
			"default_radius_m", humanize.Comma(int64(cfg.DefaultRadiusM)),
		)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down coverage service")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("coverage service exited")
	return nil
}

func runViewshed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := terrain.NewStore(cfg.AssetsRoot, cfg.TerrainCacheCapacity)
	if err != nil {
		return fmt.Errorf("open terrain store at %s: %w", cfg.AssetsRoot, err)
	}

	start := time.Now()
	radar := viewshed.RadarGeometry{
		Location:    geom.LatLon{Lat: vsLat, Lon: vsLon, Alt: store.Altitude(geom.LatLon{Lat: vsLat, Lon: vsLon})},
		HeightAMSLM: store.Altitude(geom.LatLon{Lat: vsLat, Lon: vsLon}) + vsHeightAGL,
	}

	vs, err := viewshed.BuildWithTerrain(context.Background(), store, viewshed.BuildParams{
		Radar:    radar,
		MaxRange: vsMaxRangeM,
		KFactor:  vsKFactor,
	})
	if err != nil {
		return fmt.Errorf("build viewshed: %w", err)
	}

	fmt.Printf("Viewshed for (%.4f, %.4f) height_agl=%.1fm max_range=%sm k=%.3f\n",
		vsLat, vsLon, vsHeightAGL, humanize.Comma(int64(vsMaxRangeM)), vsKFactor)
	fmt.Printf("Built in %s, grid %dx%d\n", time.Since(start), vs.Width, vs.Width)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"lat":          vsLat,
		"lon":          vsLon,
		"height_agl_m": vsHeightAGL,
		"max_range_m":  vsMaxRangeM,
		"k_factor":     vsKFactor,
		"grid_width":   vs.Width,
	})
}

func splitOrigins(csv string) []string {
	if csv == "" || csv == "*" {
		return []string{"*"}
	}
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, csv[start:i])
			}
			start = i + 1
		}
	}
	return out
}
