package scanner

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/telhawk-systems/openport/internal/models"
)

// nmap -oX report, reduced to the nodes the adapter reads. Every optional
// node is a pointer so missing elements can be told apart from empty ones.
type nmapRun struct {
	XMLName xml.Name   `xml:"nmaprun"`
	Hosts   []nmapHost `xml:"host"`
}

type nmapHost struct {
	Ports *nmapPorts `xml:"ports"`
}

type nmapPorts struct {
	Ports []nmapPort `xml:"port"`
}

type nmapPort struct {
	Protocol string       `xml:"protocol,attr"`
	PortID   int          `xml:"portid,attr"`
	State    *nmapState   `xml:"state"`
	Service  *nmapService `xml:"service"`
}

type nmapState struct {
	State string `xml:"state,attr"`
}

type nmapService struct {
	Name string `xml:"name,attr"`
}

// ParseReport extracts the state and service name for port from an nmap XML
// report. Missing nodes produce the inconclusive defaults; only a document
// that is not an nmap report at all is an error.
func ParseReport(data []byte, port int) (models.ScanResult, error) {
	result := models.InconclusiveScan()

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return result, fmt.Errorf("empty scan report")
	}

	var run nmapRun
	if err := xml.Unmarshal(data, &run); err != nil {
		return result, fmt.Errorf("decode nmap report: %w", err)
	}

	p := findPort(run, port)
	if p == nil {
		return result, nil
	}
	if p.State != nil {
		result.State = p.State.State
	}
	if p.Service != nil && p.Service.Name != "" {
		result.ServiceName = p.Service.Name
	}
	return result, nil
}

// findPort returns the entry for port. A report without it is treated as
// saying nothing about the port.
func findPort(run nmapRun, port int) *nmapPort {
	for i := range run.Hosts {
		ports := run.Hosts[i].Ports
		if ports == nil {
			continue
		}
		for j := range ports.Ports {
			if ports.Ports[j].PortID == port {
				return &ports.Ports[j]
			}
		}
	}
	return nil
}
