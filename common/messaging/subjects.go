package messaging

// Subject constants. Follow the pattern: {domain}.{resource}.{action}
const (
	// SubjectFlowsOutPort carries NewOutPortConn flow events from the traffic monitor.
	SubjectFlowsOutPort = "sensor.flows.outport"

	// SubjectAlarmsOpenPort receives confirmed open-port alarms for the alarm subsystem.
	SubjectAlarmsOpenPort = "alarms.openport.created"
)

// Queue group names for load-balanced consumers.
const (
	QueueOpenPortSensors = "openport-sensors"
)
