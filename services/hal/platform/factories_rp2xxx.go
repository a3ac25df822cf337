//go:build rp2040 || rp2350

// RP2 family (Pico / Pico 2) build: logical pin numbers map directly to
// machine.Pin GP numbering, I2C buses come up on board-default pins, and
// the console is UART0 through uartx.
package platform

import (
	"context"
	"fmt"
	"io"
	"machine"
	"sync"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers"

	"clockcode-go/services/hal"
)

// ---- GPIO ----

type rp2Pin struct {
	p machine.Pin
	n int
}

func (r *rp2Pin) ConfigureInput(pull hal.Pull) error {
	var mode machine.PinMode
	switch pull {
	case hal.PullUp:
		mode = machine.PinInputPullup
	case hal.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2Pin) Set(level bool) error {
	r.p.Set(level)
	return nil
}

func (r *rp2Pin) Get() (bool, error) { return r.p.Get(), nil }
func (r *rp2Pin) Number() int        { return r.n }

type rp2PinFactory struct {
	mu      sync.Mutex
	claimed map[int]bool
}

func (f *rp2PinFactory) ByNumber(n int) (hal.GPIOPin, error) {
	// User GPIOs are GP0..GP28 on the RP2 family.
	if n < 0 || n > 28 {
		return nil, fmt.Errorf("platform: no GPIO %d", n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed[n] {
		return nil, fmt.Errorf("platform: pin %d already claimed", n)
	}
	f.claimed[n] = true
	return &rp2Pin{p: machine.Pin(n), n: n}, nil
}

func (f *rp2PinFactory) Release(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, n)
}

// DefaultPinFactory maps logical numbers directly to machine.Pin(n).
func DefaultPinFactory() hal.PinFactory {
	return &rp2PinFactory{claimed: map[int]bool{}}
}

// ---- I2C ----

type rp2I2CFactory struct {
	buses map[int]drivers.I2C
}

func (f *rp2I2CFactory) ByIndex(n int) (drivers.I2C, error) {
	b, ok := f.buses[n]
	if !ok {
		return nil, fmt.Errorf("platform: no I2C bus %d", n)
	}
	return b, nil
}

// DefaultI2CFactory configures i2c0 and i2c1 with board-default pins at
// 400 kHz.
func DefaultI2CFactory() hal.I2CBusFactory {
	f := &rp2I2CFactory{buses: map[int]drivers.I2C{}}

	b0 := machine.I2C0
	_ = b0.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	})
	f.buses[0] = b0

	b1 := machine.I2C1
	_ = b1.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C1_SDA_PIN,
		SCL:       machine.I2C1_SCL_PIN,
	})
	f.buses[1] = b1

	return f
}

// ---- Console ----

type rp2Console struct{ u *uartx.UART }

func (c *rp2Console) Read(p []byte) (int, error) {
	return c.u.RecvSomeContext(context.Background(), p)
}

func (c *rp2Console) Write(p []byte) (int, error) { return c.u.Write(p) }

// Console returns UART0 at 115200 on the board-default pins.
func Console() io.ReadWriter {
	u := uartx.UART0
	_ = u.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	return &rp2Console{u: u}
}
