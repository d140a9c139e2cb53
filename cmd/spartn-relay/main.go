package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"spartn-relay/internal/config"
	"spartn-relay/internal/web"
)

func main() {
	var configPath string
	var summarizePath string
	var scanPath string
	var encap string
	flag.StringVar(&configPath, "config", "./spartn-relay.yaml", "Path to YAML config")
	flag.StringVar(&summarizePath, "summarize", "", "Print a summary of a capture file and exit")
	flag.StringVar(&scanPath, "scan", "", "List the SPARTN messages found in a binary file and exit")
	flag.StringVar(&encap, "encap", "raw", "Encapsulation of -summarize input: raw or ubx")
	flag.Parse()

	if summarizePath != "" {
		if err := printLogSummary(os.Stdout, summarizePath, encap); err != nil {
			log.Fatalf("summarize failed: %v", err)
		}
		return
	}
	if scanPath != "" {
		if err := printScan(os.Stdout, scanPath); err != nil {
			log.Fatalf("scan failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(cfg.Web.LogLines)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newLiveRuntime(cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer rt.Close()

	status := web.NewStatus()
	status.SetMode(cfg.Source.Type)
	status.SetProviders(rt.providers())

	log.Printf("spartn-relay starting source=%s encapsulation=%s sinks=%d", cfg.Source.Type, cfg.Source.Encapsulation, len(rt.sinks))

	if cfg.Web.Enable {
		h := web.Handler(status, logs, web.Options{StaleAfter: cfg.Web.StaleAfter})
		go func() {
			if err := web.Serve(ctx, cfg.Web.Listen, h); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("web server stopped: %v", err)
				cancel()
			}
		}()
		log.Printf("web listening on %s", cfg.Web.Listen)
	}

	if err := rt.src.Start(ctx, rt.relay.HandleChunk); err != nil {
		log.Fatalf("source start failed: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-rt.src.Done():
		rt.relay.Flush()
		log.Printf("source finished")
	}
	log.Printf("spartn-relay stopping")
}
