package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"robot-telemetry/pkg/config"
	"robot-telemetry/pkg/dashboard"
	"robot-telemetry/pkg/logging"
	"robot-telemetry/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "config file (default: config.yaml in ., ./config, /etc/robot-telemetry)")
	server := flag.String("server", "", "controller base url (overrides config)")
	robotID := flag.String("robot", "", "robot to follow (overrides config)")
	noClear := flag.Bool("no-clear", false, "append frames instead of redrawing the screen")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *server != "" {
		cfg.Dashboard.ServerURL = *server
	}
	if *robotID != "" {
		cfg.Dashboard.RobotID = *robotID
	}
	// frames own stdout; logs go to the file only when one is configured
	if cfg.Log.File != "" {
		w, closer := logging.Writer(cfg.Log, nil)
		defer closer.Close()
		log.SetOutput(w)
	} else {
		log.SetOutput(os.Stderr)
	}
	log.Printf("robot telemetry dashboard build=%s server=%s", version.Build, cfg.Dashboard.ServerURL)

	push, err := dashboard.NewWSPush(cfg.Dashboard.ServerURL)
	if err != nil {
		log.Fatalf("server url: %v", err)
	}
	pull := dashboard.NewHTTPPull(cfg.Dashboard.ServerURL, nil)
	d := cfg.Dashboard
	client := dashboard.New(push, pull, &terminal{out: os.Stdout, clear: !*noClear}, dashboard.Options{
		RobotID:         d.RobotID,
		HistorySize:     d.HistorySize,
		PollInterval:    d.PollInterval,
		HistoryInterval: d.HistoryInterval,
		ReconnectDelay:  d.ReconnectDelay,
		MaxReconnects:   d.MaxReconnects,
		FeedbackTTL:     d.FeedbackTTL,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go readCommands(ctx, client, stop)
	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("dashboard: %v", err)
	}
}

func readCommands(ctx context.Context, client *dashboard.Client, quit func()) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "q", "quit", "exit":
			quit()
			return
		default:
			client.Submit(line)
		}
	}
}
