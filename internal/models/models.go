// Package models defines the data shared between the sensor components.
package models

import (
	"strconv"
	"time"
)

// EventNewOutPortConn is the event type emitted by the traffic monitor when
// a local host is seen serving an outbound-facing port.
const EventNewOutPortConn = "NewOutPortConn"

// FlowEvent is the envelope published by the traffic monitor.
type FlowEvent struct {
	Type string `json:"type"`
	Flow *Flow  `json:"flow,omitempty"`
}

// Flow is the flow descriptor attached to a connection event.
type Flow struct {
	LocalHost string  `json:"lh"`
	DestPort  int     `json:"dp"`
	MAC       string  `json:"mac"`
	Protocol  string  `json:"pr"`
	Timestamp float64 `json:"ts"`
}

// Time returns the flow timestamp, or now when the monitor did not set one.
func (f *Flow) Time() time.Time {
	if f.Timestamp <= 0 {
		return time.Now()
	}
	sec := int64(f.Timestamp)
	nsec := int64((f.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// ID identifies the flow in logs.
func (f *Flow) ID() string {
	return f.LocalHost + ":" + strconv.Itoa(f.DestPort) + "/" + f.Protocol
}

// Port states reported by the local scan.
const (
	PortStateOpen     = "open"
	PortStateClosed   = "closed"
	PortStateFiltered = "filtered"
	PortStateUnknown  = "unknown"
)

// DefaultServiceName is reported when the scan could not identify a service.
const DefaultServiceName = "unknown"

// ScanResult is the outcome of one local scan. State is "" when the scan
// was inconclusive.
type ScanResult struct {
	State       string `json:"state"`
	ServiceName string `json:"service_name"`
}

// InconclusiveScan is returned when the scan failed or found nothing.
func InconclusiveScan() ScanResult {
	return ScanResult{State: "", ServiceName: DefaultServiceName}
}

// IsOpen reports whether the scan saw the port open.
func (r ScanResult) IsOpen() bool {
	return r.State == PortStateOpen
}

// Alert is the payload handed to the alarm subsystem for a confirmed open port.
type Alert struct {
	Source      string `json:"p.source"`
	DeviceIP    string `json:"p.device.ip"`
	DeviceMAC   string `json:"p.device.mac"`
	Port        string `json:"p.open.port"`
	Protocol    string `json:"p.open.protocol"`
	ServiceName string `json:"p.open.servicename"`
}

// QuotaSample is one completed rate-limit window of the confirmation service.
type QuotaSample struct {
	WindowEnd int64 `json:"window_end" yaml:"window_end"`
	Used      int64 `json:"used" yaml:"used"`
	Limit     int64 `json:"limit" yaml:"limit"`
}
