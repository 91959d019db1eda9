package messaging

import "time"

// HealthStatus represents the health state of a messaging connection.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// CheckClientHealth reports connectivity and broker round-trip latency.
func CheckClientHealth(client Client) HealthStatus {
	status := HealthStatus{}

	if client == nil {
		status.Error = "client is nil"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	rtt, err := client.RTT()
	if err != nil {
		status.Error = "rtt: " + err.Error()
		return status
	}
	status.Latency = rtt
	return status
}
