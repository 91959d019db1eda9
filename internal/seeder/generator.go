// Package seeder publishes synthetic connection events for exercising the
// sensor without a traffic monitor.
package seeder

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/openport/internal/models"
)

// DefaultPorts are commonly exposed service ports.
var DefaultPorts = []int{22, 80, 443, 445, 3389, 5900, 8080, 8443}

// Generator builds flow events.
type Generator struct {
	faker  *gofakeit.Faker
	hosts  []string
	ports  []int
	macs   map[string]string
	subnet string
}

// NewGenerator returns a Generator. A zero seed draws from crypto/rand.
// With no hosts, addresses are drawn from subnet (a /24 prefix such as
// "192.168.1").
func NewGenerator(seed int64, hosts []string, ports []int, subnet string) *Generator {
	if len(ports) == 0 {
		ports = DefaultPorts
	}
	if subnet == "" {
		subnet = "192.168.1"
	}
	return &Generator{
		faker:  gofakeit.New(seed),
		hosts:  hosts,
		ports:  ports,
		macs:   make(map[string]string),
		subnet: subnet,
	}
}

// Flow returns one NewOutPortConn event. A host keeps the same MAC for the
// life of the generator.
func (g *Generator) Flow(now time.Time) models.FlowEvent {
	host := g.host()
	mac, ok := g.macs[host]
	if !ok {
		mac = g.faker.MacAddress()
		g.macs[host] = mac
	}

	protocol := "tcp"
	if g.faker.Number(1, 10) == 1 {
		protocol = "udp"
	}

	return models.FlowEvent{
		Type: models.EventNewOutPortConn,
		Flow: &models.Flow{
			LocalHost: host,
			DestPort:  g.ports[g.faker.Number(0, len(g.ports)-1)],
			MAC:       mac,
			Protocol:  protocol,
			Timestamp: float64(now.UnixNano()) / 1e9,
		},
	}
}

func (g *Generator) host() string {
	if len(g.hosts) > 0 {
		return g.hosts[g.faker.Number(0, len(g.hosts)-1)]
	}
	return fmt.Sprintf("%s.%d", g.subnet, g.faker.Number(2, 254))
}
