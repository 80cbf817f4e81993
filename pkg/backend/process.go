package backend

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
	log "github.com/sirupsen/logrus"
)

// ProcessController enumerates, signals, and spawns the protected backend
// process. The PID file it maintains is a hint only; every decision
// re-verifies liveness through enumeration.
type ProcessController struct {
	config Config
	logger *log.Logger
}

func NewProcessController(config Config, logger *log.Logger) *ProcessController {
	return &ProcessController{
		config: config,
		logger: logger,
	}
}

// FindServePIDs returns the PIDs whose exact invocation is the canonical
// serve command. Matching is on argv, not on a substring of the joined
// command line, so tooling that merely references the binary name in an
// argument is never targeted.
func (pc *ProcessController) FindServePIDs() []int32 {
	procs, err := process.Processes()
	if err != nil {
		pc.logger.Debugf("process enumeration failed: %v", err)
		return nil
	}

	var pids []int32
	for _, p := range procs {
		cmdline, err := p.CmdlineSlice()
		if err != nil || len(cmdline) < 2 {
			continue
		}
		if filepath.Base(cmdline[0]) != pc.config.Binary {
			continue
		}
		if cmdline[1] != pc.config.ServeCommand {
			continue
		}
		pids = append(pids, p.Pid)
	}
	return pids
}

// Terminate sends the graceful terminate signal to pid. A process that is
// already gone or not signalable counts as resolved.
func (pc *ProcessController) Terminate(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		// Already exited
		return nil
	}
	if err := p.Terminate(); err != nil {
		if isGoneError(err) {
			return nil
		}
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	return nil
}

// ForceKill sends SIGKILL to a survivor of the grace period.
func (pc *ProcessController) ForceKill(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil {
		if isGoneError(err) {
			return nil
		}
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

// Spawn relaunches the backend serve process in a detached session with
// stdout and stderr redirected to the configured log file. The replacement
// must not share the guardian's fate.
func (pc *ProcessController) Spawn() (int32, error) {
	logFile, err := os.OpenFile(pc.config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open backend log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(pc.config.Binary, pc.config.ServeCommand)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn %s %s: %w", pc.config.Binary, pc.config.ServeCommand, err)
	}

	pid := int32(cmd.Process.Pid)

	// Reap the child when it eventually exits so it cannot zombify
	go func() {
		_ = cmd.Wait()
	}()

	if err := pc.WritePIDFile(pid); err != nil {
		pc.logger.Warnf("failed to persist PID hint: %v", err)
	}

	return pid, nil
}

// WritePIDFile persists the latest spawned PID as a hint for operators.
func (pc *ProcessController) WritePIDFile(pid int32) error {
	return os.WriteFile(pc.config.PIDFile, []byte(strconv.Itoa(int(pid))), 0o644)
}

// ReadPIDFile returns the hinted PID. Callers must re-verify the process
// actually exists via FindServePIDs before acting on it.
func (pc *ProcessController) ReadPIDFile() (int32, bool) {
	data, err := os.ReadFile(pc.config.PIDFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return int32(pid), true
}

func isGoneError(err error) bool {
	return err == process.ErrorProcessNotRunning ||
		err == syscall.ESRCH ||
		err == syscall.EPERM ||
		strings.Contains(err.Error(), "process does not exist")
}
