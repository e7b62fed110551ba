// Package daemon runs the ovnd service: it consumes cloud lifecycle events
// from NATS and reconciles the OVN Northbound database to match.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/config"
	"github.com/mulgadc/ovnd/ovnd/ovn"
	"github.com/mulgadc/ovnd/ovnd/scheduler"
	"github.com/mulgadc/ovnd/ovnd/translate"
	"github.com/mulgadc/ovnd/ovnd/utils"
)

var serviceName = "ovnd"

// Service implements the ovnd daemon lifecycle.
type Service struct {
	Config *config.Config
}

// New creates a new Service.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return &Service{Config: cfg}, nil
}

// Start runs the service until it receives SIGINT or SIGTERM.
func (svc *Service) Start() (int, error) {
	if err := utils.WritePidFile(serviceName, os.Getpid()); err != nil {
		slog.Error("Failed to write pid file", "err", err)
	}

	if err := launchService(svc.Config); err != nil {
		slog.Error("Failed to launch ovnd service", "err", err)
		return 0, err
	}

	return os.Getpid(), nil
}

// Stop stops a running ovnd instance via its pid file.
func (svc *Service) Stop() error {
	return utils.StopProcess(serviceName)
}

// Status returns the service status.
func (svc *Service) Status() (string, error) {
	pid, err := utils.ReadPidFile(serviceName)
	if err != nil {
		return "stopped", nil
	}
	return fmt.Sprintf("running (pid %d)", pid), nil
}

// Shutdown gracefully shuts down the service.
func (svc *Service) Shutdown() error {
	return svc.Stop()
}

// Reload reloads the service configuration.
func (svc *Service) Reload() error {
	return nil
}

func launchService(cfg *config.Config) error {
	slog.Info("Starting ovnd service",
		"ovn_nb_addr", cfg.OVN.NBAddr,
		"ovn_sb_addr", cfg.OVN.SBAddr,
		"nats_host", cfg.NATS.Host,
	)

	nc, err := utils.ConnectNATS(cfg.NATS.Host, cfg.NATS.Token)
	if err != nil {
		slog.Error("Failed to connect to NATS", "err", err)
		return err
	}
	defer nc.Close()

	if cfg.OVN.NBAddr == "" {
		return fmt.Errorf("OVN NB DB address not configured (ovn.nb_addr is empty)")
	}

	ctx := context.Background()

	nb := ovn.NewLiveNBClient(cfg.OVN.NBAddr, ovn.DefaultRetryConfig)
	if err := nb.Connect(ctx); err != nil {
		slog.Error("Failed to connect to OVN NB DB", "endpoint", cfg.OVN.NBAddr, "err", err)
		return fmt.Errorf("connect OVN NB DB: %w", err)
	}
	defer nb.Close()
	slog.Info("Connected to OVN NB DB", "endpoint", cfg.OVN.NBAddr)

	sb := ovn.NewLiveSBClient(cfg.OVN.SBAddr)
	if err := sb.Connect(ctx); err != nil {
		slog.Error("Failed to connect to OVN SB DB", "endpoint", cfg.OVN.SBAddr, "err", err)
		return fmt.Errorf("connect OVN SB DB: %w", err)
	}
	defer sb.Close()
	slog.Info("Connected to OVN SB DB", "endpoint", cfg.OVN.SBAddr)

	sched, err := scheduler.New(cfg.GatewayScheduler)
	if err != nil {
		return err
	}

	store := cloud.NewMemStore()
	translator := translate.NewClient(nb, sb, store, sched, nil, translate.Config{
		DHCPDefaultLeaseTime: cfg.DHCP.LeaseTime,
		BaseMAC:              cfg.DHCP.BaseMAC,
		MetadataEnabled:      cfg.DHCP.MetadataEnabled,
	})

	handler := NewHandler(translator, store)
	subs, err := handler.Subscribe(nc)
	if err != nil {
		slog.Error("Failed to subscribe to lifecycle topics", "err", err)
		return err
	}
	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()

	stopSweep := startGatewaySweep(translator, cfg.GatewayRescheduleSeconds)
	defer stopSweep()

	slog.Info("ovnd service started, waiting for lifecycle events", "subscriptions", len(subs))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("ovnd service shutting down")
	return nil
}

// startGatewaySweep runs ScheduleUnhostedGateways on a fixed interval so
// gateway ports stranded by chassis departures get rehosted. Zero disables
// the sweep.
func startGatewaySweep(translator *translate.Client, seconds int) func() {
	if seconds <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(seconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := translator.ScheduleUnhostedGateways(context.Background()); err != nil {
					slog.Error("Gateway reschedule sweep failed", "err", err)
				}
			}
		}
	}()
	return func() { close(done) }
}
