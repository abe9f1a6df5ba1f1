// Command beacon runs the authoritative Beacon role: it owns
// the canonical Ledger and Scheduler, answers every stable request type,
// and maintains the active-servers table that Miner and Relay register
// into. Flags: -d/--workdir (required), --init to scaffold a fresh work
// directory, -c/--config to point at a non-default config.json.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"synnergy-ledger/core"
	"synnergy-ledger/internal/diag"
	"synnergy-ledger/internal/roles"
	"synnergy-ledger/pkg/config"
)

const (
	defaultPort     = 9001
	defaultDiagPort = 9081
	registerTTL     = 2 * time.Minute
	sweepInterval   = 30 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	var workDir, configPath string
	var initFlag bool

	root := &cobra.Command{
		Use:   "beacon",
		Short: "run the authoritative beacon node",
	}
	root.Flags().StringVarP(&workDir, "workdir", "d", "", "work directory (required)")
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config.json (default <workdir>/config.json)")
	root.Flags().BoolVar(&initFlag, "init", false, "create a fresh work-dir and exit")
	root.MarkFlagRequired("workdir")

	exitCode := 0
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			configPath = filepath.Join(workDir, "config.json")
		}
		if initFlag {
			if err := config.Init(configPath, "localhost", defaultPort); err != nil {
				exitCode = 1
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", configPath)
			return nil
		}
		code, err := serve(workDir, configPath)
		exitCode = code
		return err
	}

	if err := root.Execute(); err != nil {
		if exitCode == 0 {
			exitCode = 1
		}
		fmt.Fprintln(os.Stderr, err)
	}
	return exitCode
}

func serve(workDir, configPath string) (int, error) {
	cfg, err := config.Load(configPath, "SYNN_BEACON")
	if err != nil {
		return 1, err
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	log := logrus.StandardLogger()
	logPath := filepath.Join(workDir, "beacon.log")
	if f, ferr := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); ferr == nil {
		log.SetOutput(f)
	}

	ledger, err := core.NewLedger(core.LedgerConfig{
		ActiveDir:           filepath.Join(workDir, "data"),
		ArchiveDir:          filepath.Join(workDir, "archive"),
		ActiveFileCapacity:  cfg.CheckpointSize,
		ArchiveFileCapacity: cfg.CheckpointSize * 4,
		MaxActiveSize:       cfg.CheckpointSize,
		CheckpointAge:       cfg.CheckpointAgeDuration(),
	}, log)
	if err != nil {
		log.WithError(err).Error("beacon: ledger open failed")
		return 2, err
	}
	defer ledger.Close()

	scheduler := core.NewScheduler(core.ClockConfig{
		GenesisTime:   time.Now().Unix(),
		SlotDuration:  cfg.SlotDuration,
		SlotsPerEpoch: cfg.SlotsPerEpoch,
	})

	beacon := roles.NewBeacon(ledger, scheduler, registerTTL, log)

	svc, err := roles.NewService(roles.ServiceConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		WriteMsBase:  100,
		WriteMsPerMB: 10,
	}, log)
	if err != nil {
		log.WithError(err).Error("beacon: service bind failed")
		return 2, err
	}
	for reqType, h := range beacon.Handlers() {
		svc.Register(reqType, h)
	}

	stopSweeper := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopSweeper:
				return
			case <-ticker.C:
				if n := beacon.SweepStale(time.Now()); n > 0 {
					log.WithField("evicted", n).Info("beacon: swept stale active-servers entries")
				}
			}
		}
	}()

	diagAddr := fmt.Sprintf("%s:%d", cfg.Host, defaultDiagPort)
	diagServer := &http.Server{Addr: diagAddr, Handler: diag.NewMux(beacon)}
	go func() {
		if err := diagServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("beacon: diagnostics server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("beacon: shutdown signal received")
		svc.Stop()
	}()

	log.WithFields(logrus.Fields{"host": cfg.Host, "port": cfg.Port}).Info("beacon: serving")
	svc.Run()

	close(stopSweeper)
	diagServer.Shutdown(context.Background())
	return 0, nil
}
