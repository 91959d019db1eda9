// Package sensor raises open-port alarms for locally observed connections
// once both a local scan and the external confirmation service agree the
// port is reachable.
package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/telhawk-systems/openport/common/logging"
	"github.com/telhawk-systems/openport/common/messaging"
	"github.com/telhawk-systems/openport/internal/alarm"
	"github.com/telhawk-systems/openport/internal/features"
	"github.com/telhawk-systems/openport/internal/metrics"
	"github.com/telhawk-systems/openport/internal/models"
)

// AlertSource names this sensor in emitted alerts.
const AlertSource = "OpenPortByInboundFlowSensor"

// FeatureGate answers runtime feature-flag queries.
type FeatureGate interface {
	IsFeatureOn(ctx context.Context, name string) bool
}

// PortScanner runs the local scan. It never fails; an inconclusive scan has
// an empty state.
type PortScanner interface {
	ConfirmOpenPort(ctx context.Context, host string, port int) models.ScanResult
}

// AddressSource returns the host's current public address.
type AddressSource interface {
	PublicIP(ctx context.Context) (string, error)
}

// Confirmer asks the external service whether ip:port is reachable.
type Confirmer interface {
	ConfirmOpenPort(ctx context.Context, ip string, port int) (bool, error)
}

// AlarmManager is the alarm subsystem.
type AlarmManager interface {
	EnrichDeviceInfo(ctx context.Context, a *alarm.Alarm) error
	EnqueueAlarm(ctx context.Context, a *alarm.Alarm) error
}

// Dependencies are the collaborators of a Sensor. All are required.
type Dependencies struct {
	Features  FeatureGate
	Scanner   PortScanner
	Addresses AddressSource
	Confirmer Confirmer
	Alarms    AlarmManager
}

// Config controls the event subscription.
type Config struct {
	Subject string
	Queue   string
	// MaxInFlight caps concurrent pipeline runs. Zero means unbounded.
	MaxInFlight int64
}

// Sensor is the confirmation pipeline.
type Sensor struct {
	deps   Dependencies
	cfg    Config
	logger *logging.Logger
	sem    *semaphore.Weighted

	mu       sync.Mutex
	sub      messaging.Subscription
	stopping bool
	wg       sync.WaitGroup
}

// New creates a Sensor.
func New(cfg Config, deps Dependencies, logger *logging.Logger) *Sensor {
	if cfg.Subject == "" {
		cfg.Subject = messaging.SubjectFlowsOutPort
	}
	if cfg.Queue == "" {
		cfg.Queue = messaging.QueueOpenPortSensors
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Sensor{deps: deps, cfg: cfg, logger: logger}
	if cfg.MaxInFlight > 0 {
		s.sem = semaphore.NewWeighted(cfg.MaxInFlight)
	}
	return s
}

// Start subscribes to connection events. Each event runs the pipeline on
// its own goroutine.
func (s *Sensor) Start(ctx context.Context, sub messaging.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		return errors.New("sensor already started")
	}

	subscription, err := sub.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, func(_ context.Context, msg *messaging.Message) error {
		s.dispatch(ctx, msg)
		return nil
	})
	if err != nil {
		return err
	}
	s.sub = subscription

	s.logger.InfoContext(ctx, "open port sensor started",
		logging.Subject(s.cfg.Subject),
		"queue", s.cfg.Queue,
		"max_in_flight", s.cfg.MaxInFlight)
	return nil
}

// Stop unsubscribes and waits for in-flight pipeline runs to finish.
func (s *Sensor) Stop() {
	s.mu.Lock()
	s.stopping = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("failed to unsubscribe open port sensor", logging.Error(err))
		}
	}
	s.wg.Wait()
}

func (s *Sensor) dispatch(ctx context.Context, msg *messaging.Message) {
	var event models.FlowEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		metrics.FlowsTotal.WithLabelValues(metrics.OutcomeMalformed).Inc()
		s.logger.WarnContext(ctx, "dropping malformed flow event",
			logging.Subject(msg.Subject), logging.Error(err))
		return
	}
	if event.Type != "" && event.Type != models.EventNewOutPortConn {
		return
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				metrics.FlowsTotal.WithLabelValues(metrics.OutcomeCancelled).Inc()
				s.logger.DebugContext(ctx, "flow dropped while waiting for a scan slot", logging.Error(err))
				return
			}
			defer s.sem.Release(1)
		}
		s.HandleFlow(ctx, &event)
	}()
}

// HandleFlow runs the pipeline for one event and returns the outcome it
// stopped at.
func (s *Sensor) HandleFlow(ctx context.Context, event *models.FlowEvent) string {
	outcome := s.handle(ctx, event)
	metrics.FlowsTotal.WithLabelValues(outcome).Inc()
	return outcome
}

func (s *Sensor) handle(ctx context.Context, event *models.FlowEvent) string {
	if event == nil || event.Flow == nil {
		return metrics.OutcomeNoFlow
	}
	flow := event.Flow
	ctx = logging.ContextWithFlowID(ctx, flow.ID())

	metrics.FlowsInFlight.Inc()
	defer metrics.FlowsInFlight.Dec()

	if !s.deps.Features.IsFeatureOn(ctx, features.AlarmOpenPort) {
		return metrics.OutcomeFeatureOff
	}

	scan := s.deps.Scanner.ConfirmOpenPort(ctx, flow.LocalHost, flow.DestPort)
	if !scan.IsOpen() {
		s.logger.DebugContext(ctx, "port not open locally", logging.State(scan.State))
		return metrics.OutcomeNotOpen
	}

	publicIP, err := s.deps.Addresses.PublicIP(ctx)
	if err != nil || publicIP == "" {
		s.logger.WarnContext(ctx, "public ip unavailable, skipping external confirmation", logging.Error(err))
		return metrics.OutcomeNoAddress
	}

	confirmed, err := s.deps.Confirmer.ConfirmOpenPort(ctx, publicIP, flow.DestPort)
	if err != nil {
		s.logger.ErrorContext(ctx, "external confirmation failed",
			logging.Host(publicIP), logging.Port(flow.DestPort), logging.Error(err))
		return metrics.OutcomeConfirmFailed
	}
	if !confirmed {
		s.logger.DebugContext(ctx, "port not reachable externally",
			logging.Host(publicIP), logging.Port(flow.DestPort))
		return metrics.OutcomeNotConfirmed
	}

	s.emit(ctx, flow, scan)
	return metrics.OutcomeAlerted
}

func (s *Sensor) emit(ctx context.Context, flow *models.Flow, scan models.ScanResult) {
	a, err := alarm.NewOpenPortAlarm(flow.Time(), models.Alert{
		Source:      AlertSource,
		DeviceIP:    flow.LocalHost,
		DeviceMAC:   flow.MAC,
		Port:        strconv.Itoa(flow.DestPort),
		Protocol:    flow.Protocol,
		ServiceName: scan.ServiceName,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build alarm", logging.Error(err))
		return
	}

	if err := s.deps.Alarms.EnrichDeviceInfo(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "failed to enrich alarm", logging.MAC(flow.MAC), logging.Error(err))
	}
	if err := s.deps.Alarms.EnqueueAlarm(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue alarm", logging.Error(err))
		return
	}

	s.logger.InfoContext(ctx, "open port confirmed",
		logging.Host(flow.LocalHost),
		logging.Port(flow.DestPort),
		logging.Protocol(flow.Protocol),
		logging.MAC(flow.MAC),
		"service", scan.ServiceName)
}
