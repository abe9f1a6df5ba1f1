// Command relay runs the Relay role: it mirrors the Beacon's
// canonical chain into its own Ledger and answers read-only wire requests
// from it, without ever producing a block itself. Flags: -d/--workdir
// (required), --init to scaffold a fresh work directory, -c/--config to
// point at a non-default config.json.
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
	defaultPort       = 9003
	defaultDiagPort   = 9083
	syncInterval      = time.Second
	refreshEveryTicks = 10
	backoffBase       = 200 * time.Millisecond
	dialTimeout       = 5 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	var workDir, configPath string
	var initFlag bool

	root := &cobra.Command{
		Use:   "relay",
		Short: "mirror a beacon's canonical chain and serve read requests",
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
	cfg, err := config.Load(configPath, "SYNN_RELAY")
	if err != nil {
		return 1, err
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if len(cfg.Beacons) == 0 {
		return 1, fmt.Errorf("config: beacons must list at least one beacon address")
	}
	beaconAddr := cfg.Beacons[0]

	log := logrus.StandardLogger()
	logPath := filepath.Join(workDir, "relay.log")
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
		log.WithError(err).Error("relay: ledger open failed")
		return 2, err
	}
	defer ledger.Close()

	scheduler := core.NewScheduler(core.ClockConfig{
		GenesisTime:   time.Now().Unix(),
		SlotDuration:  cfg.SlotDuration,
		SlotsPerEpoch: cfg.SlotsPerEpoch,
	})

	dialer := core.NewDialer(dialTimeout, 30*time.Second)
	slotDuration := time.Duration(cfg.SlotDuration) * time.Second
	relay := roles.NewRelay(ledger, scheduler, cfg.Host, uint16(cfg.Port), beaconAddr, dialer.Dial, backoffBase, slotDuration, log)

	svc, err := roles.NewService(roles.ServiceConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		WriteMsBase:  100,
		WriteMsPerMB: 10,
	}, log)
	if err != nil {
		log.WithError(err).Error("relay: service bind failed")
		return 2, err
	}
	for reqType, h := range relay.Handlers() {
		svc.Register(reqType, h)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("relay: shutdown signal received")
		cancel()
		relay.Stop()
		svc.Stop()
	}()

	diagAddr := fmt.Sprintf("%s:%d", cfg.Host, defaultDiagPort)
	diagServer := &http.Server{Addr: diagAddr, Handler: diag.NewMux(relay)}
	go func() {
		if err := diagServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("relay: diagnostics server stopped")
		}
	}()

	go relay.Run(ctx, syncInterval, refreshEveryTicks)

	log.WithFields(logrus.Fields{"host": cfg.Host, "port": cfg.Port}).Info("relay: serving")
	svc.Run()

	diagServer.Shutdown(context.Background())
	return 0, nil
}
