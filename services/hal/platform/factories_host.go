//go:build !(rp2040 || rp2350)

// Host build: in-memory pins and a stdio console, enough to run the
// service stack and its tests without a board attached.
package platform

import (
	"fmt"
	"io"
	"os"
	"sync"

	"tinygo.org/x/drivers"

	"clockcode-go/services/hal"
)

type hostPin struct {
	num    int
	level  bool
	output bool
}

func (p *hostPin) ConfigureInput(pull hal.Pull) error {
	p.output = false
	return nil
}

func (p *hostPin) ConfigureOutput(initial bool) error {
	p.output = true
	p.level = initial
	return nil
}

func (p *hostPin) Set(level bool) error {
	p.level = level
	return nil
}

func (p *hostPin) Get() (bool, error) { return p.level, nil }
func (p *hostPin) Number() int        { return p.num }

type hostPinFactory struct {
	mu      sync.Mutex
	claimed map[int]*hostPin
}

func (f *hostPinFactory) ByNumber(n int) (hal.GPIOPin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.claimed[n]; taken {
		return nil, fmt.Errorf("platform: pin %d already claimed", n)
	}
	p := &hostPin{num: n}
	f.claimed[n] = p
	return p, nil
}

func (f *hostPinFactory) Release(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, n)
}

// DefaultPinFactory returns the host pin pool.
func DefaultPinFactory() hal.PinFactory {
	return &hostPinFactory{claimed: map[int]*hostPin{}}
}

type hostI2CFactory struct{}

func (hostI2CFactory) ByIndex(n int) (drivers.I2C, error) {
	return nil, fmt.Errorf("platform: no I2C bus %d on host", n)
}

// DefaultI2CFactory returns the host I2C pool, which is empty.
func DefaultI2CFactory() hal.I2CBusFactory {
	return hostI2CFactory{}
}

type stdioConsole struct{}

func (stdioConsole) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConsole) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

// Console returns the interactive console, stdin/stdout on host.
func Console() io.ReadWriter {
	return stdioConsole{}
}
