package simulated

import (
	"context"

	"github.com/srg/vivotherm/internal/device"
)

// Address is the address advertised by the simulated thermo-hygrometer.
const Address = "C0:FF:EE:00:00:01"

type advertisement struct {
	name    string
	address string
	rssi    int
}

func (a advertisement) LocalName() string        { return a.name }
func (a advertisement) ManufacturerData() []byte { return nil }
func (a advertisement) Services() []string       { return []string{"fff0"} }
func (a advertisement) Connectable() bool        { return true }
func (a advertisement) RSSI() int                { return a.rssi }
func (a advertisement) Addr() string             { return a.address }

// Scanner advertises one ThermoBeacon2 at Address, then waits for ctx.
type Scanner struct {
	Name string
}

// NewScanner returns a Scanner advertising as "ThermoBeacon2".
func NewScanner() *Scanner {
	return &Scanner{Name: "ThermoBeacon2"}
}

func (s *Scanner) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	handler(advertisement{name: s.Name, address: Address, rssi: -52})
	<-ctx.Done()
	return nil
}
