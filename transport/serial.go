package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// DINBaud is the MIDI 1.0 serial rate.
const DINBaud = 31250

// SerialLink is a Link over a serial device carrying raw MIDI bytes, such
// as a DIN MIDI interface on a UART.
type SerialLink struct {
	name string
	port io.ReadWriteCloser
	log  *slog.Logger

	writeMu sync.Mutex
	asm     Assembler

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// OpenSerial opens device at baud (DINBaud when zero).
func OpenSerial(device string, baud int) (*SerialLink, error) {
	if baud == 0 {
		baud = DINBaud
	}
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	slog.Info("serial: port opened", "device", device, "baud", baud)
	return NewSerialLink(device, p), nil
}

// NewSerialLink runs the link over an already open byte stream.
func NewSerialLink(name string, port io.ReadWriteCloser) *SerialLink {
	return &SerialLink{
		name: name,
		port: port,
		log:  slog.Default().With("serial", name),
		done: make(chan struct{}),
	}
}

// SerialPortNames lists the serial devices present on the system.
func SerialPortNames() ([]string, error) {
	return serial.GetPortsList()
}

func (l *SerialLink) String() string { return l.name }

func (l *SerialLink) Write(data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	for len(data) > 0 {
		n, err := l.port.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (l *SerialLink) Listen(fn func([]byte)) error {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		buf := make([]byte, 256)
		for {
			n, err := l.port.Read(buf)
			if n > 0 {
				l.asm.Feed(buf[:n], fn)
			}
			if err != nil {
				select {
				case <-l.done:
				default:
					if !errors.Is(err, io.EOF) {
						l.log.Error("serial: read error", "err", err)
					}
				}
				return
			}
		}
	}()
	return nil
}

func (l *SerialLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.port.Close()
		l.wg.Wait()
	})
	return err
}
