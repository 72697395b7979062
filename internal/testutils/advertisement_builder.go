package testutils

import (
	"context"

	"github.com/srg/vivotherm/internal/device"
)

// Advertisement is a static device.Advertisement for tests.
type Advertisement struct {
	Name          string
	Address       string
	Rssi          int
	Manufacturer  []byte
	ServiceList   []string
	IsConnectable bool
}

func (a *Advertisement) LocalName() string        { return a.Name }
func (a *Advertisement) ManufacturerData() []byte { return a.Manufacturer }
func (a *Advertisement) Services() []string       { return a.ServiceList }
func (a *Advertisement) Connectable() bool        { return a.IsConnectable }
func (a *Advertisement) RSSI() int                { return a.Rssi }
func (a *Advertisement) Addr() string             { return a.Address }

// AdvertisementBuilder builds advertisements for testing with a fluent API.
type AdvertisementBuilder struct {
	adv Advertisement
}

// NewAdvertisementBuilder creates a builder for a connectable advertisement.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: Advertisement{IsConnectable: true}}
}

// CreateMockAdvertisement is a shortcut for the common name/address/RSSI triple.
func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Rssi = rssi
	return b
}

func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.ServiceList = append(b.adv.ServiceList, uuids...)
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.Manufacturer = data
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.IsConnectable = c
	return b
}

// Build returns a copy of the configured advertisement.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := b.adv
	return &adv
}

// StaticScanner replays a fixed list of advertisements, then returns ScanErr.
type StaticScanner struct {
	Advertisements []device.Advertisement
	ScanErr        error
}

// Scan delivers every advertisement unless ctx is already done.
func (s *StaticScanner) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	for _, adv := range s.Advertisements {
		if ctx.Err() != nil {
			return nil
		}
		handler(adv)
	}
	return s.ScanErr
}
