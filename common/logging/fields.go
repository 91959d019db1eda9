package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across components.
const (
	FieldService   = "service"
	FieldFlowID    = "flow_id"
	FieldHost      = "host"
	FieldPort      = "port"
	FieldMAC       = "mac"
	FieldProtocol  = "protocol"
	FieldState     = "state"
	FieldSubject   = "subject"
	FieldWindowEnd = "window_end"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Host returns a slog attribute for a host address.
func Host(host string) slog.Attr {
	return slog.String(FieldHost, host)
}

// Port returns a slog attribute for a port number.
func Port(port int) slog.Attr {
	return slog.Int(FieldPort, port)
}

// MAC returns a slog attribute for a hardware address.
func MAC(mac string) slog.Attr {
	return slog.String(FieldMAC, mac)
}

// Protocol returns a slog attribute for a transport protocol.
func Protocol(proto string) slog.Attr {
	return slog.String(FieldProtocol, proto)
}

// State returns a slog attribute for a port state.
func State(state string) slog.Attr {
	return slog.String(FieldState, state)
}

// Subject returns a slog attribute for a message subject.
func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

// WindowEnd returns a slog attribute for a quota window end (unix seconds).
func WindowEnd(ts int64) slog.Attr {
	return slog.Int64(FieldWindowEnd, ts)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
