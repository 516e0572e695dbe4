package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/wufuliang561/TrendRadar/internal/app"
	"github.com/wufuliang561/TrendRadar/internal/config"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

func main() {
	var (
		cfgPath string
		mode    string
		once    bool
	)
	flag.StringVar(&cfgPath, "config", "./config/config.yaml", "path to config yaml")
	flag.StringVar(&mode, "mode", "", "override report mode: daily|current|incremental")
	flag.BoolVar(&once, "once", false, "run a single cycle and exit, ignoring the schedule")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logSvc, log := logx.New(logx.Config{Level: "info", Console: true})
	defer logSvc.Close()

	mgr := config.NewManager(cfgPath)
	mgr.SetLogger(log)

	a, err := app.New(mgr, logSvc, log, mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	defer a.Close()

	// No-ops outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	defer func() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }()

	if once {
		err = a.RunCycle(ctx)
	} else {
		err = a.Run(ctx)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
