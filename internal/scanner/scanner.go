// Package scanner confirms port reachability with an active nmap scan.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"time"

	"github.com/telhawk-systems/openport/common/logging"
	"github.com/telhawk-systems/openport/internal/metrics"
	"github.com/telhawk-systems/openport/internal/models"
)

const (
	DefaultBinary  = "nmap"
	DefaultTimeout = 60 * time.Second
)

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// waitDelay bounds how long Run waits for output pipes after cancellation.
const waitDelay = time.Second

// ExecRunner runs commands with os/exec. The command runs in its own process
// group so cancellation reaches processes it spawns, such as nmap under sudo.
type ExecRunner struct{}

// Run implements Runner. Stderr is folded into the returned error.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Config controls how nmap is invoked.
type Config struct {
	Binary  string
	Sudo    bool
	Timeout time.Duration
}

// Nmap is the local scan adapter.
type Nmap struct {
	cfg    Config
	runner Runner
	logger *logging.Logger
}

// New creates an Nmap scanner. A nil runner uses ExecRunner.
func New(cfg Config, runner Runner, logger *logging.Logger) *Nmap {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Nmap{cfg: cfg, runner: runner, logger: logger}
}

// ConfirmOpenPort scans host:port and reports the observed state and
// service. It never fails: a scan that cannot be run or understood yields
// models.InconclusiveScan.
func (n *Nmap) ConfirmOpenPort(ctx context.Context, host string, port int) models.ScanResult {
	if net.ParseIP(host) == nil || port < 1 || port > 65535 {
		n.logger.WarnContext(ctx, "refusing to scan invalid target", logging.Host(host), logging.Port(port))
		return n.record(models.InconclusiveScan())
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	name, args := n.command(host, port)
	n.logger.DebugContext(ctx, "running port scan", "cmd", name, "args", args)

	start := time.Now()
	out, err := n.runner.Run(ctx, name, args...)
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		n.logger.ErrorContext(ctx, "port scan failed",
			logging.Host(host), logging.Port(port), logging.Error(err))
		return n.record(models.InconclusiveScan())
	}

	result, err := ParseReport(out, port)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to parse scan report",
			logging.Host(host), logging.Port(port), logging.Error(err))
		return n.record(models.InconclusiveScan())
	}

	return n.record(result)
}

func (n *Nmap) command(host string, port int) (string, []string) {
	args := []string{"-p" + strconv.Itoa(port), host, "-oX", "-"}
	if n.cfg.Sudo {
		return "sudo", append([]string{n.cfg.Binary}, args...)
	}
	return n.cfg.Binary, args
}

func (n *Nmap) record(r models.ScanResult) models.ScanResult {
	state := r.State
	if state == "" {
		state = "inconclusive"
	}
	metrics.ScanResults.WithLabelValues(state).Inc()
	return r
}
