package configflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/vivotherm/internal/catalog"
	"github.com/srg/vivotherm/internal/entry"
)

// Abort reasons.
const (
	ReasonAlreadyConfigured = "already_configured"
	ReasonNotSupported      = "not_supported"
)

// StepConfirmID is the form step shown after a discovery.
const StepConfirmID = "bluetooth_confirm"

var (
	// ErrAlreadyConfigured is returned when the discovered device already has an entry.
	ErrAlreadyConfigured = errors.New("device already configured")
	// ErrInvalidStep is returned when a handler is called in the wrong state.
	ErrInvalidStep = errors.New("invalid config flow step")
)

// Step is the state of a Flow.
type Step int

const (
	StepStart Step = iota
	StepConfirm
	StepCreated
	StepAborted
)

func (s Step) String() string {
	switch s {
	case StepStart:
		return "start"
	case StepConfirm:
		return "confirm"
	case StepCreated:
		return "created"
	case StepAborted:
		return "aborted"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// ResultType tells the caller what to render.
type ResultType string

const (
	ResultForm        ResultType = "form"
	ResultCreateEntry ResultType = "create_entry"
	ResultAbort       ResultType = "abort"
)

// Result is the outcome of a flow step.
type Result struct {
	Type         ResultType
	StepID       string
	Reason       string
	Title        string
	Placeholders map[string]string
	Entry        *entry.Entry
}

// DiscoveryInfo is the advertisement metadata that starts a flow.
type DiscoveryInfo struct {
	Name             string
	Address          string
	RSSI             int
	ManufacturerData []byte
	ServiceUUIDs     []string
}

// ConfirmInput is the user's answer to the confirm form.
type ConfirmInput struct {
	Name string
}

// Registry stores entries. It is satisfied by *entry.Store.
type Registry interface {
	Exists(ctx context.Context, uniqueID string) (bool, error)
	Create(ctx context.Context, e entry.Entry) (entry.Entry, error)
}

// Flow pairs one discovered device. It is not safe for concurrent use.
type Flow struct {
	registry Registry
	logger   *logrus.Logger

	step    Step
	pending entry.DeviceIdentity
	reason  string
}

// New creates a Flow in StepStart.
func New(registry Registry, logger *logrus.Logger) *Flow {
	if logger == nil {
		logger = logrus.New()
	}
	return &Flow{registry: registry, logger: logger}
}

// Step returns the current state.
func (f *Flow) Step() Step {
	return f.step
}

// Pending returns the identity awaiting confirmation.
func (f *Flow) Pending() entry.DeviceIdentity {
	return f.pending
}

// HandleBluetooth starts the flow from a discovery. A device that is already configured
// aborts with ErrAlreadyConfigured; otherwise the flow moves to the confirm form.
func (f *Flow) HandleBluetooth(ctx context.Context, info DiscoveryInfo) (Result, error) {
	if f.step != StepStart {
		return Result{}, fmt.Errorf("%w: bluetooth discovery in state %s", ErrInvalidStep, f.step)
	}

	log := f.logger.WithFields(logrus.Fields{
		"address":        info.Address,
		"discovery_name": info.Name,
	})

	if strings.TrimSpace(info.Address) == "" {
		log.Debug("Discovery without an address")
		return f.abort(ReasonNotSupported), nil
	}

	uniqueID := entry.UniqueID(info.Name, info.Address)
	exists, err := f.registry.Exists(ctx, uniqueID)
	if err != nil {
		return Result{}, fmt.Errorf("checking %s: %w", uniqueID, err)
	}
	if exists {
		log.Info("Device already configured")
		return f.abort(ReasonAlreadyConfigured), fmt.Errorf("%w: %s", ErrAlreadyConfigured, uniqueID)
	}

	displayName := info.Name
	if dt, ok := catalog.LookupDevice(info.Name); ok {
		displayName = dt.Name
	}
	f.pending = entry.DeviceIdentity{
		Name:             displayName,
		DiscoveryName:    info.Name,
		DiscoveryAddress: info.Address,
	}
	f.step = StepConfirm
	log.WithField("name", displayName).Debug("Awaiting confirmation")

	return f.confirmForm(), nil
}

// HandleConfirm completes the flow. A nil input re-shows the form. The uniqueness check
// is repeated because another flow may have created the entry meanwhile.
func (f *Flow) HandleConfirm(ctx context.Context, input *ConfirmInput) (Result, error) {
	if f.step != StepConfirm {
		return Result{}, fmt.Errorf("%w: confirm in state %s", ErrInvalidStep, f.step)
	}
	if input == nil {
		return f.confirmForm(), nil
	}

	identity := f.pending
	if name := strings.TrimSpace(input.Name); name != "" {
		identity.Name = name
	}

	uniqueID := identity.UniqueID()
	exists, err := f.registry.Exists(ctx, uniqueID)
	if err != nil {
		return Result{}, fmt.Errorf("checking %s: %w", uniqueID, err)
	}
	if exists {
		return f.abort(ReasonAlreadyConfigured), fmt.Errorf("%w: %s", ErrAlreadyConfigured, uniqueID)
	}

	created, err := f.registry.Create(ctx, entry.Entry{
		Version:  entry.CurrentVersion,
		Title:    identity.Name,
		UniqueID: uniqueID,
		Data:     identity,
	})
	if errors.Is(err, entry.ErrDuplicate) {
		return f.abort(ReasonAlreadyConfigured), fmt.Errorf("%w: %s", ErrAlreadyConfigured, uniqueID)
	}
	if err != nil {
		return Result{}, fmt.Errorf("creating entry: %w", err)
	}

	f.step = StepCreated
	f.logger.WithFields(logrus.Fields{
		"entry_id": created.ID,
		"address":  identity.DiscoveryAddress,
		"name":     identity.Name,
	}).Info("Entry created")

	return Result{Type: ResultCreateEntry, Title: created.Title, Entry: &created}, nil
}

// HandleUser rejects manual setup; devices are only added through discovery.
func (f *Flow) HandleUser() Result {
	return f.abort(ReasonNotSupported)
}

func (f *Flow) confirmForm() Result {
	return Result{
		Type:   ResultForm,
		StepID: StepConfirmID,
		Placeholders: map[string]string{
			"name":    f.pending.Name,
			"address": f.pending.DiscoveryAddress,
		},
	}
}

func (f *Flow) abort(reason string) Result {
	f.step = StepAborted
	f.reason = reason
	return Result{Type: ResultAbort, Reason: reason}
}

// Reason returns the abort reason, if aborted.
func (f *Flow) Reason() string {
	return f.reason
}
