// Command cpdlcd is the CPDLC router daemon (spec.md §6.3): it accepts
// TLS connections from aircraft/ATC stations, forwards CPDLC messages
// by callsign, and queues messages for temporarily offline recipients.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/marmos91/cpdlcd/internal/cli/output"
	"github.com/marmos91/cpdlcd/internal/config"
	"github.com/marmos91/cpdlcd/internal/logger"
	"github.com/marmos91/cpdlcd/internal/metrics"
	"github.com/marmos91/cpdlcd/internal/router"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "", "path to configuration file")
		port        = pflag.IntP("port", "p", 0, "override the configured listen port")
		debug       = pflag.BoolP("debug", "d", false, "enable debug logging")
		metricsAddr = pflag.String("metrics-addr", "", "address to serve /metrics on (empty disables)")
		showVersion = pflag.Bool("version", false, "print version and exit")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Printf("cpdlcd %s (%s)\n", version, commit)
		return
	}

	level := "INFO"
	if *debug {
		level = "DEBUG"
	}
	if err := logger.Init(logger.Config{Level: level, Format: "text"}); err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *port != 0 {
		for i, addr := range cfg.Listen {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}
			cfg.Listen[i] = net.JoinHostPort(host, strconv.Itoa(*port))
		}
	}

	rec := metrics.New()
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, rec)
	}

	d, err := router.New(cfg, rec)
	if err != nil {
		fmt.Fprintln(os.Stderr, "router:", err)
		os.Exit(1)
	}

	printStartupSummary(cfg, *metricsAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- d.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	logger.Info("daemon running, press Ctrl+C to stop")

	select {
	case <-sigCh:
		signal.Stop(sigCh)
		logger.Info("shutdown signal received")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("shutdown error", logger.Err(err))
			os.Exit(1)
		}
		logger.Info("stopped gracefully")
	case err := <-serverDone:
		signal.Stop(sigCh)
		if err != nil {
			logger.Error("daemon error", logger.Err(err))
			os.Exit(1)
		}
	}
}

func serveMetrics(addr string, rec *metrics.Recorder) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	logger.Info("metrics listening", logger.PeerAddr(addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", logger.Err(err))
	}
}

func printStartupSummary(cfg config.Config, metricsAddr string) {
	fmt.Println("cpdlcd starting")

	t := output.NewTableData("Listen address")
	for _, addr := range cfg.Listen {
		t.AddRow(addr)
	}
	output.PrintTable(os.Stdout, t)

	pairs := [][2]string{
		{"ATC callsigns", fmt.Sprint(cfg.ATCCallsigns)},
		{"Queue byte budget", fmt.Sprintf("%d bytes", cfg.QueueMaxBytes)},
		{"Queue TTL", fmt.Sprintf("%d seconds", cfg.QueueTTLSeconds)},
	}
	if metricsAddr != "" {
		pairs = append(pairs, [2]string{"Metrics", metricsAddr})
	}
	output.SimpleTable(os.Stdout, pairs)
}
