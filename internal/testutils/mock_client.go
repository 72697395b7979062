//go:build test

package testutils

import (
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of the go-ble client surface used by goble.Session.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	profile, _ := args.Get(0).(*ble.Profile)
	return profile, args.Error(1)
}

func (m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	args := m.Called(c, ind, h)
	return args.Error(0)
}

func (m *MockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	args := m.Called(c, ind)
	return args.Error(0)
}

func (m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	args := m.Called(c, value, noRsp)
	return args.Error(0)
}

func (m *MockClient) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

// PeripheralBuilder wires a MockClient that behaves like a thermo-hygrometer:
// writing the command characteristic triggers notifications on the status characteristic.
type PeripheralBuilder struct {
	commandUUID string
	statusUUID  string

	notifications [][]byte
	notifyDelay   time.Duration

	discoverErr  error
	subscribeErr error
	writeErr     error
	missing      map[string]bool
}

// NewPeripheralBuilder creates a builder for a peripheral exposing the given characteristics.
func NewPeripheralBuilder(commandUUID, statusUUID string) *PeripheralBuilder {
	return &PeripheralBuilder{
		commandUUID: commandUUID,
		statusUUID:  statusUUID,
		missing:     make(map[string]bool),
	}
}

// WithNotification queues a payload pushed after the command write. Payloads are pushed in order.
func (b *PeripheralBuilder) WithNotification(payload []byte) *PeripheralBuilder {
	b.notifications = append(b.notifications, payload)
	return b
}

// WithNotifyDelay delays the notifications after the write.
func (b *PeripheralBuilder) WithNotifyDelay(d time.Duration) *PeripheralBuilder {
	b.notifyDelay = d
	return b
}

// WithoutCharacteristic removes a characteristic from the discovered profile.
func (b *PeripheralBuilder) WithoutCharacteristic(uuid string) *PeripheralBuilder {
	b.missing[uuid] = true
	return b
}

func (b *PeripheralBuilder) WithDiscoverError(err error) *PeripheralBuilder {
	b.discoverErr = err
	return b
}

func (b *PeripheralBuilder) WithSubscribeError(err error) *PeripheralBuilder {
	b.subscribeErr = err
	return b
}

func (b *PeripheralBuilder) WithWriteError(err error) *PeripheralBuilder {
	b.writeErr = err
	return b
}

// Profile builds the discovered GATT profile.
func (b *PeripheralBuilder) Profile() *ble.Profile {
	svc := ble.NewService(ble.MustParse("0000fff0-0000-1000-8000-00805f9b34fb"))
	for _, uuid := range []string{b.commandUUID, b.statusUUID} {
		if b.missing[uuid] {
			continue
		}
		svc.Characteristics = append(svc.Characteristics, ble.NewCharacteristic(ble.MustParse(uuid)))
	}
	return &ble.Profile{Services: []*ble.Service{svc}}
}

// Build returns a MockClient with expectations for a full exchange. Release calls
// (Unsubscribe, CancelConnection) are optional expectations; assert them with AssertCalled.
func (b *PeripheralBuilder) Build() *MockClient {
	client := &MockClient{}

	client.On("DiscoverProfile", true).Return(b.Profile(), b.discoverErr).Maybe()

	var (
		mu      sync.Mutex
		handler ble.NotificationHandler
	)
	client.On("Subscribe", mock.Anything, false, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			defer mu.Unlock()
			handler = args.Get(2).(ble.NotificationHandler)
		}).
		Return(b.subscribeErr).Maybe()

	client.On("WriteCharacteristic", mock.Anything, mock.Anything, false).
		Run(func(mock.Arguments) {
			if b.writeErr != nil {
				return
			}
			mu.Lock()
			h := handler
			mu.Unlock()
			if h == nil || len(b.notifications) == 0 {
				return
			}
			go func() {
				if b.notifyDelay > 0 {
					time.Sleep(b.notifyDelay)
				}
				for _, payload := range b.notifications {
					buf := append([]byte(nil), payload...)
					h(buf)
					// Peripherals reuse their buffers once the handler returns.
					for i := range buf {
						buf[i] = 0xEE
					}
				}
			}()
		}).
		Return(b.writeErr).Maybe()

	client.On("Unsubscribe", mock.Anything, false).Return(nil).Maybe()
	client.On("CancelConnection").Return(nil).Maybe()

	return client
}
