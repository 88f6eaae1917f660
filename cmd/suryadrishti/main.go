// Command suryadrishti runs the solar microgrid dispatch service: a
// periodic optimization loop per configured microgrid, plus an HTTP
// and WebSocket API for on-demand runs and dashboard status.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/devskill-org/suryadrishti/server"
	"github.com/devskill-org/suryadrishti/service"
	"github.com/devskill-org/suryadrishti/store"
	"github.com/devskill-org/suryadrishti/telemetry"
)

func main() {
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		dispatch   = flag.String("dispatch", "", "Run a single dispatch for this microgrid ID and exit, printing the resulting schedule")
		horizon    = flag.Int("horizon", 0, "Horizon hours for -dispatch (defaults to the configured horizon_hours)")
		info       = flag.String("info", "", "Dump current plant telemetry from this Modbus TCP address and exit (e.g. 192.0.2.10:502)")
		serverOnly = flag.Bool("serverOnly", false, "Run only the HTTP/WebSocket server, without the periodic dispatch loop")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	if *info != "" {
		showTelemetry(*info)
		return
	}

	cfg, err := service.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "[SURYADRISHTI] ", log.LstdFlags)

	repo, err := store.Open(cfg.PostgresConnString)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer repo.Close()

	entsoeLocation, err := time.LoadLocation(cfg.EntsoeLocation)
	if err != nil {
		logger.Fatalf("invalid entsoe_location %q: %v", cfg.EntsoeLocation, err)
	}

	forecastSource := service.NewMeteoForecastSource(cfg.ForecastUserAgent)
	rateSource := service.NewEntsoeRateSource(cfg.EntsoeSecurityToken, cfg.EntsoeURLFormat, entsoeLocation, cfg.EntsoeFetchTimeout)

	engine := service.NewEngine(repo, forecastSource, rateSource, logger)
	engine.AllowStaleForecast = cfg.AllowStaleForecast
	engine.ForecastTimeout = cfg.ForecastFetchTimeout

	if *dispatch != "" {
		runDispatch(engine, *dispatch, firstPositive(*horizon, cfg.HorizonHours), logger)
		return
	}

	webServer := server.New(engine, repo, cfg.HTTPPort, logger)
	if err := webServer.Start(); err != nil {
		logger.Fatalf("failed to start HTTP server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if !*serverOnly {
		for _, microgridID := range cfg.MicrogridIDs {
			runner := service.NewPeriodicRunner(engine, microgridID, cfg.HorizonHours, cfg.RunInterval, logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				runner.Run(ctx)
			}()
		}
	}

	logger.Printf("suryadrishti started for %d microgrid(s), listening on port %d. Press Ctrl+C to stop...", len(cfg.MicrogridIDs), cfg.HTTPPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Printf("shutdown signal received, stopping...")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Printf("error stopping HTTP server: %v", err)
	}

	logger.Printf("suryadrishti stopped")
}

func runDispatch(engine *service.Engine, microgridID string, horizonHours int, logger *log.Logger) {
	result, err := engine.Run(context.Background(), service.RunRequest{
		MicrogridID:  microgridID,
		HorizonHours: horizonHours,
		Date:         time.Now().Format("2006-01-02"),
	})
	if err != nil {
		logger.Fatalf("dispatch run failed for %s: %v", microgridID, err)
	}

	fmt.Println("\n========================================")
	fmt.Println("DISPATCH SCHEDULE")
	fmt.Println("========================================")
	fmt.Printf("Microgrid: %s   Date: %s   Buckets: %d\n\n", microgridID, result.Schedule.Date, len(result.Schedule.Buckets))

	fmt.Println("Hour  Solar   Load   BattChg BattDis GridImp GridExp   Gen   SOC")
	for _, b := range result.Schedule.Buckets {
		fmt.Printf("%4d  %5.1f  %5.1f   %5.1f   %5.1f   %5.1f   %5.1f  %5.1f  %4.0f%%\n",
			b.Index, b.SolarKW, b.LoadKW, b.BatteryChargeKW, b.BatteryDischargeKW,
			b.GridImportKW, b.GridExportKW, b.GeneratorKW, b.SOCEnd*100)
	}

	fmt.Println("\n========================================")
	fmt.Println("SUMMARY")
	fmt.Println("========================================")
	fmt.Printf("Solar utilization:    %.1f%%\n", result.Schedule.Metrics.SolarUtilizationPercent)
	fmt.Printf("Estimated savings:    %.2f\n", result.Schedule.Metrics.EstimatedCostSavings)
	fmt.Printf("Validator verdict:    %s\n", result.Verdict.Verdict)
	fmt.Printf("Alerts raised:        %d\n", len(result.Alerts))
	for _, w := range result.Schedule.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
}

func showTelemetry(address string) {
	client, err := telemetry.NewTCPClient(address)
	if err != nil {
		fmt.Println("Error connecting to plant:", err)
		os.Exit(1)
	}
	defer client.Close()

	reading, err := client.ReadCurrent()
	if err != nil {
		fmt.Println("Error reading plant telemetry:", err)
		os.Exit(1)
	}

	fmt.Println("Plant Telemetry")
	fmt.Println("===============")
	fmt.Printf("Timestamp:       %s\n", reading.Timestamp.Format(time.RFC3339))
	fmt.Printf("Battery SOC:     %.1f%%\n", reading.BatterySOC*100)
	fmt.Printf("Solar power:     %.2f kW\n", reading.SolarPowerKW)
	fmt.Printf("Grid power:      %.2f kW (positive = import)\n", reading.GridPowerKW)
	fmt.Printf("Battery power:   %.2f kW (positive = charging)\n", reading.BatteryPowerKW)
	fmt.Printf("Grid connected:  %v\n", reading.GridConnected)
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 24
}

func showHelp() {
	fmt.Println("suryadrishti - solar microgrid dispatch optimization service")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Computes hourly dispatch schedules for solar-plus-battery microgrids:")
	fmt.Println("  allocating solar generation, battery charge/discharge, grid import/export,")
	fmt.Println("  and a backup generator across a forecast horizon, subject to device")
	fmt.Println("  priorities and battery/generator operating constraints.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  suryadrishti [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Run the periodic dispatch loop and HTTP server")
	fmt.Println("  suryadrishti --config=config.json")
	fmt.Println()
	fmt.Println("  # Run a single dispatch for one microgrid and print its schedule")
	fmt.Println("  suryadrishti --dispatch=mg-001 --horizon=24")
	fmt.Println()
	fmt.Println("  # Dump current plant telemetry over Modbus")
	fmt.Println("  suryadrishti --info=192.0.2.10:502")
	fmt.Println()
	fmt.Println("  # Run only the HTTP/WebSocket server, no periodic dispatch")
	fmt.Println("  suryadrishti --serverOnly")
}
