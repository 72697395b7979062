// Package entry holds the persisted configuration of paired thermo-hygrometers.
//
// An Entry is created once by the config flow and never changes afterwards. Its
// unique id, derived from the discovery name and the BLE address, prevents the
// same device from being configured twice.
package entry

import (
	"errors"
	"fmt"
	"time"
)

// CurrentVersion is the schema version of the persisted DeviceIdentity.
const CurrentVersion = 1

// Sentinel errors returned by Store.
var (
	ErrNotFound  = errors.New("entry not found")
	ErrDuplicate = errors.New("entry already configured")
)

// DeviceIdentity is the persisted configuration record of one device.
type DeviceIdentity struct {
	Name             string `json:"name"`
	DiscoveryName    string `json:"discovery_name"`
	DiscoveryAddress string `json:"discovery_address"`
}

// UniqueID returns the identity's unique id.
func (d DeviceIdentity) UniqueID() string {
	return UniqueID(d.DiscoveryName, d.DiscoveryAddress)
}

// Entry is a configured device.
type Entry struct {
	ID        string         `json:"entry_id"`
	Version   int            `json:"version"`
	Title     string         `json:"title"`
	UniqueID  string         `json:"unique_id"`
	Data      DeviceIdentity `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// Address returns the BLE address the entry polls.
func (e Entry) Address() string {
	return e.Data.DiscoveryAddress
}

// UniqueID builds the deduplication key "<discoveryName>-<address>".
func UniqueID(discoveryName, address string) string {
	return fmt.Sprintf("%s-%s", discoveryName, address)
}
