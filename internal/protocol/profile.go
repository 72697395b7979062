package protocol

import (
	"fmt"
	"sort"
)

// Profile describes where a firmware revision places the probe fields in a frame.
type Profile struct {
	Name             string
	MainTemp         int
	MainHumidity     int
	ExternalTemp     int
	ExternalHumidity int
}

var (
	// ProfileV2 matches the current THB1S firmware: main probe first, external probe second.
	ProfileV2 = Profile{
		Name:             "thb1s-v2",
		MainTemp:         1,
		MainHumidity:     3,
		ExternalTemp:     7,
		ExternalHumidity: 9,
	}

	// ProfileV1 matches early THB1S firmware, where temperatures and humidities are interleaved.
	ProfileV1 = Profile{
		Name:             "thb1s-v1",
		MainTemp:         1,
		MainHumidity:     7,
		ExternalTemp:     3,
		ExternalHumidity: 9,
	}

	// DefaultProfile is used when no profile is configured.
	DefaultProfile = ProfileV2
)

var profiles = map[string]Profile{
	ProfileV1.Name: ProfileV1,
	ProfileV2.Name: ProfileV2,
}

// LookupProfile returns the profile registered under name. An empty name yields DefaultProfile.
func LookupProfile(name string) (Profile, error) {
	if name == "" {
		return DefaultProfile, nil
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownProfile, name, ProfileNames())
	}
	return p, nil
}

// ProfileNames lists the registered profile names in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeFrame decodes the main probe and, when neither of its fields carries the
// sentinel, the external probe.
func (p Profile) DecodeFrame(buf []byte) (*Snapshot, error) {
	main, err := DecodeProbe(buf, p.MainTemp, p.MainHumidity)
	if err != nil {
		return nil, fmt.Errorf("main probe: %w", err)
	}

	rawTemp, err := DecodeInt16LE(buf, p.ExternalTemp)
	if err != nil {
		return nil, fmt.Errorf("external probe: %w", err)
	}
	rawHumidity, err := DecodeInt16LE(buf, p.ExternalHumidity)
	if err != nil {
		return nil, fmt.Errorf("external probe: %w", err)
	}

	snapshot := &Snapshot{Main: main}
	if rawTemp != Sentinel && rawHumidity != Sentinel {
		external, err := DecodeProbe(buf, p.ExternalTemp, p.ExternalHumidity)
		if err != nil {
			return nil, fmt.Errorf("external probe: %w", err)
		}
		snapshot.External = &external
	}
	return snapshot, nil
}

// EncodeFrame builds a FrameLength frame carrying the given temperatures and
// humidities. A nil external writes the disconnected sentinel. VPD fields are ignored.
func (p Profile) EncodeFrame(main ProbeReading, external *ProbeReading) []byte {
	buf := make([]byte, FrameLength)
	putInt16LE(buf, p.MainTemp, encodeFixedPoint(main.TemperatureC))
	putInt16LE(buf, p.MainHumidity, encodeFixedPoint(main.HumidityPct))
	if external == nil {
		putInt16LE(buf, p.ExternalTemp, Sentinel)
		putInt16LE(buf, p.ExternalHumidity, Sentinel)
	} else {
		putInt16LE(buf, p.ExternalTemp, encodeFixedPoint(external.TemperatureC))
		putInt16LE(buf, p.ExternalHumidity, encodeFixedPoint(external.HumidityPct))
	}
	return buf
}
