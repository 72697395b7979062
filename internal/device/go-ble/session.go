package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/vivotherm/internal/device"
)

const (
	// DefaultConnectTimeout bounds dialing and profile discovery when the request leaves it unset.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultReadTimeout bounds the wait for the notification after the command write.
	DefaultReadTimeout = 1 * time.Second
)

// SessionState is a step of the one-shot read exchange.
type SessionState string

const (
	StateIdle                 SessionState = "idle"
	StateConnected            SessionState = "connected"
	StateSubscribed           SessionState = "subscribed"
	StateCommandSent          SessionState = "command_sent"
	StateAwaitingNotification SessionState = "awaiting_notification"
	StateReceived             SessionState = "received"
	StateTimedOut             SessionState = "timed_out"
	StateUnsubscribed         SessionState = "unsubscribed"
	StateDisconnected         SessionState = "disconnected"
)

// Client is the subset of ble.Client a Session drives.
type Client interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
}

// Dial connects to the peripheral at address (can be overridden in tests).
var Dial = func(ctx context.Context, address string) (Client, error) {
	dev, err := acquireDevice()
	if err != nil {
		return nil, err
	}
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// dialSlot admits one connection attempt at a time; the controller creates LE
// connections sequentially. Exchanges on established links run concurrently.
var dialSlot = make(chan struct{}, 1)

// Session performs command/notification exchanges with one BLE peripheral.
// Exchanges on one Session never overlap. Use a Pool for one Session per address.
type Session struct {
	logger *logrus.Logger

	mu    sync.Mutex
	trace []SessionState
}

var _ device.FrameReader = (*Session)(nil)

// NewSession creates a Session that logs through logger.
func NewSession(logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{logger: logger}
}

// Trace returns the states visited by the most recent ReadFrame call.
func (s *Session) Trace() []SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionState, len(s.trace))
	copy(out, s.trace)
	return out
}

// ReadFrame connects to req.Address, subscribes to the status characteristic, writes the
// command and returns a copy of the first notification payload. The subscription and the
// connection are released before returning, whatever the outcome.
func (s *Session) ReadFrame(ctx context.Context, req *device.ReadRequest) ([]byte, error) {
	if req == nil || strings.TrimSpace(req.Address) == "" {
		return nil, device.ErrNoAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trace = nil
	log := s.logger.WithField("address", req.Address)
	s.transition(log, StateIdle)

	connectTimeout := req.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	readTimeout := req.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	log.WithField("timeout", connectTimeout).Debug("Dialing BLE device...")
	client, err := dial(connCtx, req.Address)
	if err != nil {
		return nil, dialError(ctx, req.Address, err)
	}
	s.transition(log, StateConnected)

	var status *ble.Characteristic
	defer func() {
		s.release(log, client, status)
	}()

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	command, err := findCharacteristic(profile, req.CommandCharacteristic)
	if err != nil {
		return nil, err
	}
	status, err = findCharacteristic(profile, req.StatusCharacteristic)
	if err != nil {
		return nil, err
	}

	signal := make(chan []byte, 1)
	var once sync.Once
	handler := func(data []byte) {
		once.Do(func() {
			// The library may reuse data after the handler returns.
			signal <- append([]byte(nil), data...)
		})
	}

	if err := client.Subscribe(status, false, handler); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", req.StatusCharacteristic, NormalizeError(err))
	}
	s.transition(log, StateSubscribed)

	if err := client.WriteCharacteristic(command, req.Command, false); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", req.CommandCharacteristic, NormalizeError(err))
	}
	s.transition(log, StateCommandSent)

	timer := time.NewTimer(readTimeout)
	defer timer.Stop()

	s.transition(log, StateAwaitingNotification)
	select {
	case payload := <-signal:
		s.transition(log.WithField("bytes", len(payload)), StateReceived)
		return payload, nil
	case <-timer.C:
		s.transition(log.WithField("timeout", readTimeout), StateTimedOut)
		return nil, fmt.Errorf("%w after %s", device.ErrReadTimeout, readTimeout)
	case <-ctx.Done():
		s.transition(log.WithField("error", ctx.Err()), StateTimedOut)
		return nil, fmt.Errorf("%w: %w", device.ErrReadTimeout, ctx.Err())
	}
}

// dial waits for the dial slot within ctx, then connects.
func dial(ctx context.Context, address string) (Client, error) {
	select {
	case dialSlot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-dialSlot }()
	return Dial(ctx, address)
}

// release unsubscribes from status (when resolved) and cancels the connection.
// Failures are logged; they never replace the outcome of the read.
func (s *Session) release(log *logrus.Entry, client Client, status *ble.Characteristic) {
	if status != nil {
		if err := client.Unsubscribe(status, false); err != nil {
			log.WithField("error", NormalizeError(err)).Warn("Failed to unsubscribe from status characteristic")
		}
		s.transition(log, StateUnsubscribed)
	}

	if err := client.CancelConnection(); err != nil {
		log.WithField("error", NormalizeError(err)).Warn("BLE device disconnected with errors")
	}
	s.transition(log, StateDisconnected)
}

func (s *Session) transition(log *logrus.Entry, state SessionState) {
	s.trace = append(s.trace, state)
	log.WithField("state", state).Debug("BLE session state changed")
}

func dialError(ctx context.Context, address string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("failed to connect to device with address %q: %w", address, ctx.Err())
	}

	normalized := NormalizeError(err)
	var cerr *device.ConnectionError
	if errors.As(normalized, &cerr) {
		return normalized
	}
	return &device.ConnectionError{
		State: device.Unreachable,
		Msg:   fmt.Sprintf("failed to connect to device with address %q", address),
		Err:   err,
	}
}

// findCharacteristic resolves uuid in any service of the discovered profile.
func findCharacteristic(profile *ble.Profile, uuid string) (*ble.Characteristic, error) {
	if profile != nil {
		for _, svc := range profile.Services {
			for _, char := range svc.Characteristics {
				if device.SameUUID(char.UUID.String(), uuid) {
					return char, nil
				}
			}
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{uuid}}
}
