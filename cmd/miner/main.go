// Command miner runs the Miner role: it wakes on a tick,
// refreshes the stakeholder list from a Beacon, syncs its own ledger up to
// the Beacon's chain tip, produces at most one block per slot when elected
// leader, and broadcasts it back. Flags: -d/--workdir (required), --init to
// scaffold a fresh work directory, -c/--config to point at a non-default
// config.json. Miner-only config fields: minerId/stake/keys.
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
	defaultPort       = 9002
	defaultDiagPort   = 9082
	tickInterval      = time.Second
	refreshEveryTicks = 10
	dialTimeout       = 5 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	var workDir, configPath string
	var initFlag bool

	root := &cobra.Command{
		Use:   "miner",
		Short: "run a stake-weighted block-producing node",
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
	cfg, err := config.Load(configPath, "SYNN_MINER")
	if err != nil {
		return 1, err
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.MinerID == "" {
		return 1, fmt.Errorf("config: minerId must be set")
	}
	if len(cfg.Beacons) == 0 {
		return 1, fmt.Errorf("config: beacons must list at least one beacon address")
	}
	beaconAddr := cfg.Beacons[0]

	log := logrus.StandardLogger()
	logPath := filepath.Join(workDir, "miner.log")
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
		log.WithError(err).Error("miner: ledger open failed")
		return 2, err
	}
	defer ledger.Close()

	scheduler := core.NewScheduler(core.ClockConfig{
		GenesisTime:   time.Now().Unix(),
		SlotDuration:  cfg.SlotDuration,
		SlotsPerEpoch: cfg.SlotsPerEpoch,
	})
	scheduler.AddStakeholder(core.Stakeholder{ID: cfg.MinerID, Host: cfg.Host, Port: uint16(cfg.Port), Stake: cfg.Stake})

	dialer := core.NewDialer(dialTimeout, 30*time.Second)
	miner, err := roles.NewMiner(ledger, scheduler, cfg.MinerID, cfg.Host, uint16(cfg.Port), beaconAddr, dialer.Dial, workDir, log)
	if err != nil {
		log.WithError(err).Error("miner: state load failed")
		return 2, err
	}

	svc, err := roles.NewService(roles.ServiceConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		WriteMsBase:  100,
		WriteMsPerMB: 10,
	}, log)
	if err != nil {
		log.WithError(err).Error("miner: service bind failed")
		return 2, err
	}
	for reqType, h := range miner.Handlers() {
		svc.Register(reqType, h)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("miner: shutdown signal received")
		cancel()
		miner.Stop()
		svc.Stop()
	}()

	diagAddr := fmt.Sprintf("%s:%d", cfg.Host, defaultDiagPort)
	diagServer := &http.Server{Addr: diagAddr, Handler: diag.NewMux(miner)}
	go func() {
		if err := diagServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("miner: diagnostics server stopped")
		}
	}()

	go miner.Run(ctx, tickInterval, refreshEveryTicks)

	log.WithFields(logrus.Fields{"host": cfg.Host, "port": cfg.Port, "minerId": cfg.MinerID}).Info("miner: serving")
	svc.Run()

	diagServer.Shutdown(context.Background())
	return 0, nil
}
