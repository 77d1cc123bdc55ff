//go:build !tinygo

package hal

import (
	"fmt"
	"os"
	"sync"
	"time"
)

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	gpio   GPIO
	t      *hostTime
}

// New returns a host HAL implementation: stdout logging, a handful of
// virtual GPIO pins, and a set of free-running signal pins useful for
// driving demo interrupts without real hardware.
func New() HAL {
	logger := &hostLogger{w: os.Stdout}
	t := newHostTime()
	led := &hostLED{logger: logger}
	pins := []GPIOPin{newLEDPin("LED", led)}
	for i := 0; i < 7; i++ {
		pins = append(pins, newVirtualPin(fmt.Sprintf("GPIO%d", i+1), GPIOCapInput|GPIOCapOutput|GPIOCapPullUp|GPIOCapPullDown))
	}
	pins = append(pins,
		newSignalPin("SIG1HZ", 1*time.Second, 500*time.Millisecond, 1),
		newSignalPin("SIG5HZ", 200*time.Millisecond, 100*time.Millisecond, 2),
		newSignalPin("SIGPULSE", 1*time.Second, 50*time.Millisecond, 3),
	)
	gpio := newVirtualGPIO(pins)
	return &hostHAL{
		logger: logger,
		led:    led,
		gpio:   gpio,
		t:      t,
	}
}

func (h *hostHAL) Logger() Logger { return h.logger }
func (h *hostHAL) LED() LED       { return h.led }
func (h *hostHAL) GPIO() GPIO     { return h.gpio }
func (h *hostHAL) Time() Time     { return h.t }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu     sync.Mutex
	on     bool
	logger *hostLogger
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = true
	l.logger.WriteLineString("led: HIGH")
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = false
	l.logger.WriteLineString("led: LOW")
}
