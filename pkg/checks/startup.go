package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/jaypipes/ghw"
	"github.com/sentryhost/guardian/pkg/backend"
	"github.com/sentryhost/guardian/pkg/brownout"
	"github.com/sentryhost/guardian/pkg/guardian"
	"github.com/sentryhost/guardian/pkg/killseq"
	"github.com/sentryhost/guardian/pkg/metrics"
	"github.com/sentryhost/guardian/pkg/serving"
	"github.com/sentryhost/guardian/pkg/status"
	log "github.com/sirupsen/logrus"
)

// CheckStartupRequirements validates every configuration section and probes
// the collaborators. Config errors are fatal; unreachable collaborators are
// warnings only; protecting a host whose backend is already down is
// exactly the guardian's job.
func CheckStartupRequirements(logger *log.Logger) error {
	if _, err := guardian.ConfigFromViper(nil); err != nil {
		return fmt.Errorf("guardian configuration invalid: %w", err)
	}
	if _, err := metrics.ConfigFromViper(nil); err != nil {
		return fmt.Errorf("metrics configuration invalid: %w", err)
	}
	if _, err := brownout.ConfigFromViper(nil); err != nil {
		return fmt.Errorf("brownout configuration invalid: %w", err)
	}
	if _, err := killseq.ConfigFromViper(nil); err != nil {
		return fmt.Errorf("killseq configuration invalid: %w", err)
	}
	if _, err := status.ConfigFromViper(nil); err != nil {
		return fmt.Errorf("status configuration invalid: %w", err)
	}

	servingConfig, err := serving.ConfigFromViper(nil)
	if err != nil {
		return fmt.Errorf("serving configuration invalid: %w", err)
	}
	backendConfig, err := backend.ConfigFromViper(nil)
	if err != nil {
		return fmt.Errorf("backend configuration invalid: %w", err)
	}

	LogHardwareInventory(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	procs := backend.NewProcessController(backendConfig, logger)
	pids := procs.FindServePIDs()
	if hinted, ok := procs.ReadPIDFile(); ok && len(pids) == 0 {
		logger.Warnf("PID file hints at %d but no serve process is running", hinted)
	}
	if len(pids) > 0 {
		logger.Infof("backend serve process running, pids %v", pids)
	}

	healthClient := backend.NewHealthClient(backendConfig, logger)
	if err := healthClient.Healthy(ctx); err != nil {
		logger.Warnf("backend health probe failed (guardian will still start): %v", err)
	} else {
		logger.Infof("backend reachable at %s", backendConfig.ServerURL)
	}

	logger.Infof("serving system configured at %s", servingConfig.ServerURL)
	return nil
}

// LogHardwareInventory logs what the guardian is protecting: total memory,
// CPU topology, and block storage. Best effort; ghw reads can fail inside
// containers.
func LogHardwareInventory(logger *log.Logger) {
	if memory, err := ghw.Memory(); err != nil {
		logger.Debugf("memory inventory unavailable: %v", err)
	} else {
		logger.Infof("host memory: %d GiB usable", memory.TotalUsableBytes/(1024*1024*1024))
	}

	if cpuInfo, err := ghw.CPU(); err != nil {
		logger.Debugf("cpu inventory unavailable: %v", err)
	} else {
		logger.Infof("host cpu: %d cores, %d threads", cpuInfo.TotalCores, cpuInfo.TotalThreads)
	}

	if block, err := ghw.Block(); err != nil {
		logger.Debugf("block storage inventory unavailable: %v", err)
	} else {
		for _, disk := range block.Disks {
			logger.Infof("host disk: %s %d GiB (%s)", disk.Name, disk.SizeBytes/(1024*1024*1024), disk.DriveType)
		}
	}
}
