// Package alarm hands confirmed open-port alerts to the alarm subsystem.
package alarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/openport/common/logging"
	"github.com/telhawk-systems/openport/common/messaging"
	"github.com/telhawk-systems/openport/internal/metrics"
	"github.com/telhawk-systems/openport/internal/models"
)

// TypeOpenPort identifies open-port alarms.
const TypeOpenPort = "ALARM_OPENPORT"

// DeviceKeyPrefix prefixes the per-device hash maintained by host discovery.
const DeviceKeyPrefix = "host:mac:"

// Device is the identity of the host serving the port, as far as host
// discovery knows it.
type Device struct {
	Name     string `json:"name,omitempty"`
	Vendor   string `json:"vendor,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// Alarm is the envelope enqueued for the alarm subsystem.
type Alarm struct {
	ID        string       `json:"aid"`
	Type      string       `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   models.Alert `json:"payload"`
	Device    *Device      `json:"device,omitempty"`
}

// NewOpenPortAlarm wraps alert in a new alarm observed at ts.
func NewOpenPortAlarm(ts time.Time, alert models.Alert) (*Alarm, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate alarm id: %w", err)
	}
	return &Alarm{
		ID:        id.String(),
		Type:      TypeOpenPort,
		Timestamp: ts.UTC(),
		Payload:   alert,
	}, nil
}

// Manager enriches alarms with device details and publishes them.
type Manager struct {
	redis     redis.Cmdable
	publisher messaging.Publisher
	subject   string
	logger    *logging.Logger
}

// NewManager creates a Manager. An empty subject uses
// messaging.SubjectAlarmsOpenPort.
func NewManager(client redis.Cmdable, publisher messaging.Publisher, subject string, logger *logging.Logger) *Manager {
	if subject == "" {
		subject = messaging.SubjectAlarmsOpenPort
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		redis:     client,
		publisher: publisher,
		subject:   subject,
		logger:    logger,
	}
}

// EnrichDeviceInfo attaches what host discovery knows about the alarm's
// device. An unknown device leaves the alarm unchanged.
func (m *Manager) EnrichDeviceInfo(ctx context.Context, a *Alarm) error {
	if a == nil {
		return errors.New("nil alarm")
	}
	mac := strings.ToUpper(strings.TrimSpace(a.Payload.DeviceMAC))
	if mac == "" {
		return nil
	}

	fields, err := m.redis.HGetAll(ctx, DeviceKeyPrefix+mac).Result()
	if err != nil {
		metrics.AlarmErrors.WithLabelValues("enrich").Inc()
		return fmt.Errorf("load device %s: %w", mac, err)
	}
	if len(fields) == 0 {
		m.logger.DebugContext(ctx, "no device info for alarm", logging.MAC(mac))
		return nil
	}

	a.Device = &Device{
		Name:     fields["name"],
		Vendor:   fields["vendor"],
		Hostname: fields["hostname"],
	}
	return nil
}

// EnqueueAlarm publishes the alarm.
func (m *Manager) EnqueueAlarm(ctx context.Context, a *Alarm) error {
	if a == nil {
		return errors.New("nil alarm")
	}
	data, err := json.Marshal(a)
	if err != nil {
		metrics.AlarmErrors.WithLabelValues("marshal").Inc()
		return fmt.Errorf("failed to marshal alarm: %w", err)
	}
	if err := m.publisher.Publish(ctx, m.subject, data); err != nil {
		metrics.AlarmErrors.WithLabelValues("enqueue").Inc()
		return fmt.Errorf("publish alarm %s: %w", a.ID, err)
	}

	metrics.AlarmsEnqueued.Inc()
	m.logger.InfoContext(ctx, "alarm enqueued",
		"alarm_id", a.ID,
		logging.Host(a.Payload.DeviceIP),
		"port", a.Payload.Port,
		logging.Subject(m.subject))
	return nil
}
