package configflow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/srg/vivotherm/internal/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *entry.Store {
	t.Helper()
	s, err := entry.Open(entry.Config{Path: filepath.Join(t.TempDir(), "entries.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var discovery = DiscoveryInfo{
	Name:    "ThermoBeacon2",
	Address: "AA:BB:CC:DD:EE:FF",
	RSSI:    -60,
}

func TestFlowCreatesEntry(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	flow := New(store, nil)
	assert.Equal(t, StepStart, flow.Step())

	res, err := flow.HandleBluetooth(ctx, discovery)
	require.NoError(t, err)
	assert.Equal(t, ResultForm, res.Type)
	assert.Equal(t, StepConfirmID, res.StepID)
	assert.Equal(t, "VIVOSUN AeroLab THB1S", res.Placeholders["name"], "MUST surface the catalog name")
	assert.Equal(t, StepConfirm, flow.Step())

	res, err = flow.HandleConfirm(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultForm, res.Type, "nil input MUST re-show the form")
	assert.Equal(t, StepConfirm, flow.Step())

	res, err = flow.HandleConfirm(ctx, &ConfirmInput{Name: "Grow Tent"})
	require.NoError(t, err)
	assert.Equal(t, ResultCreateEntry, res.Type)
	assert.Equal(t, "Grow Tent", res.Title)
	require.NotNil(t, res.Entry)
	assert.Equal(t, entry.DeviceIdentity{
		Name:             "Grow Tent",
		DiscoveryName:    "ThermoBeacon2",
		DiscoveryAddress: "AA:BB:CC:DD:EE:FF",
	}, res.Entry.Data)
	assert.Equal(t, "ThermoBeacon2-AA:BB:CC:DD:EE:FF", res.Entry.UniqueID)
	assert.Equal(t, StepCreated, flow.Step())

	stored, err := store.Get(ctx, res.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Entry.Data, stored.Data)
}

func TestFlowBlankNameKeepsSuggestion(t *testing.T) {
	ctx := context.Background()
	flow := New(openStore(t), nil)

	_, err := flow.HandleBluetooth(ctx, discovery)
	require.NoError(t, err)
	res, err := flow.HandleConfirm(ctx, &ConfirmInput{Name: "  "})
	require.NoError(t, err)
	assert.Equal(t, "VIVOSUN AeroLab THB1S", res.Entry.Data.Name)
}

func TestFlowUnknownDeviceUsesDiscoveredName(t *testing.T) {
	flow := New(openStore(t), nil)

	res, err := flow.HandleBluetooth(context.Background(), DiscoveryInfo{Name: "ThermoBeacon3", Address: "11:22"})
	require.NoError(t, err)
	assert.Equal(t, "ThermoBeacon3", res.Placeholders["name"])
	assert.Equal(t, "ThermoBeacon3", flow.Pending().Name)
}

func TestFlowDuplicateDiscovery(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	first := New(store, nil)
	_, err := first.HandleBluetooth(ctx, discovery)
	require.NoError(t, err)
	_, err = first.HandleConfirm(ctx, &ConfirmInput{Name: "Grow Tent"})
	require.NoError(t, err)

	second := New(store, nil)
	res, err := second.HandleBluetooth(ctx, discovery)

	assert.ErrorIs(t, err, ErrAlreadyConfigured, "duplicate discovery MUST abort")
	assert.Equal(t, ResultAbort, res.Type)
	assert.Equal(t, ReasonAlreadyConfigured, res.Reason)
	assert.Equal(t, StepAborted, second.Step())

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "MUST NOT create a second entry")
}

func TestFlowDuplicateAtConfirm(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	a := New(store, nil)
	b := New(store, nil)
	_, err := a.HandleBluetooth(ctx, discovery)
	require.NoError(t, err)
	_, err = b.HandleBluetooth(ctx, discovery)
	require.NoError(t, err)

	_, err = a.HandleConfirm(ctx, &ConfirmInput{})
	require.NoError(t, err)

	res, err := b.HandleConfirm(ctx, &ConfirmInput{})
	assert.ErrorIs(t, err, ErrAlreadyConfigured, "uniqueness MUST be rechecked at create time")
	assert.Equal(t, ReasonAlreadyConfigured, res.Reason)
}

func TestFlowInvalidSteps(t *testing.T) {
	ctx := context.Background()
	flow := New(openStore(t), nil)

	_, err := flow.HandleConfirm(ctx, &ConfirmInput{})
	assert.ErrorIs(t, err, ErrInvalidStep, "confirm before discovery MUST fail")

	_, err = flow.HandleBluetooth(ctx, discovery)
	require.NoError(t, err)
	_, err = flow.HandleBluetooth(ctx, discovery)
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestFlowUserStep(t *testing.T) {
	flow := New(openStore(t), nil)
	res := flow.HandleUser()
	assert.Equal(t, ResultAbort, res.Type)
	assert.Equal(t, ReasonNotSupported, res.Reason)
	assert.Equal(t, StepAborted, flow.Step())
	assert.Equal(t, ReasonNotSupported, flow.Reason())
}

func TestFlowMissingAddress(t *testing.T) {
	flow := New(openStore(t), nil)
	res, err := flow.HandleBluetooth(context.Background(), DiscoveryInfo{Name: "ThermoBeacon2"})
	require.NoError(t, err)
	assert.Equal(t, ReasonNotSupported, res.Reason)
}

type failingRegistry struct{}

func (failingRegistry) Exists(context.Context, string) (bool, error) {
	return false, errors.New("database is locked")
}

func (failingRegistry) Create(context.Context, entry.Entry) (entry.Entry, error) {
	return entry.Entry{}, errors.New("unreachable")
}

func TestFlowRegistryError(t *testing.T) {
	flow := New(failingRegistry{}, nil)
	_, err := flow.HandleBluetooth(context.Background(), discovery)
	assert.ErrorContains(t, err, "database is locked")
	assert.Equal(t, StepStart, flow.Step(), "registry errors MUST NOT advance the flow")
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "confirm", StepConfirm.String())
	assert.Equal(t, "step(9)", Step(9).String())
}
