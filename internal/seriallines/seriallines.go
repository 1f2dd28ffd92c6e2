// Package seriallines reads the four probe input lines from a serial-attached
// logic probe. The probe reports one frame per sample as "1,0,1,0\r\n"
// (ch1-positive, ch1-negative, ch2-positive, ch2-negative); a reader
// goroutine keeps the most recent frame so the acquisition loop can read the
// line state without blocking on the port.
package seriallines

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"dualscope/internal/scope"
)

// BadFrameError reports a frame that could not be parsed into four line
// levels. Malformed frames are dropped; the newline split resyncs the stream
// on its own.
type BadFrameError struct {
	Frame []byte
}

func (e *BadFrameError) Error() string {
	return fmt.Sprintf("seriallines: malformed frame: %q", e.Frame)
}

// Source is a scope.LineSource backed by a serial port.
type Source struct {
	portName string
	baudRate int
	logger   *zap.Logger

	port serial.Port
	wg   sync.WaitGroup

	mu      sync.Mutex
	latest  scope.LineState
	readErr error
}

// New builds a source for the given port. The port is not opened until Open.
func New(portName string, baudRate int, logger *zap.Logger) *Source {
	return &Source{
		portName: portName,
		baudRate: baudRate,
		logger:   logger,
	}
}

// DetectPort returns the first serial port that looks like a USB-attached
// probe and can actually be opened at the given baud rate.
func DetectPort(baudRate int) (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", errors.Wrap(err, "listing serial ports")
	}

	var candidates []string
	for _, p := range ports {
		if strings.Contains(p, "ttyUSB") || strings.Contains(p, "ttyACM") ||
			strings.Contains(p, "usbserial") || strings.Contains(p, "usbmodem") {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		candidates = ports
	}

	for _, p := range candidates {
		port, err := serial.Open(p, &serial.Mode{BaudRate: baudRate})
		if err != nil {
			continue
		}
		port.Close()
		return p, nil
	}
	return "", errors.New("no accessible serial port found")
}

// Open claims the serial port and starts the frame reader.
func (s *Source) Open() error {
	port, err := serial.Open(s.portName, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return errors.Wrapf(err, "opening serial port %s", s.portName)
	}
	port.SetReadTimeout(time.Duration(5 * float64(time.Millisecond)))
	port.ResetInputBuffer()

	s.mu.Lock()
	s.port = port
	s.readErr = nil
	s.latest = scope.LineState{}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(port)
	return nil
}

// ReadLines returns the line state of the most recent complete frame. A
// serial read failure recorded by the reader goroutine surfaces here, which
// aborts the acquisition session.
func (s *Source) ReadLines() (scope.LineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return scope.LineState{}, s.readErr
	}
	return s.latest, nil
}

// Close releases the serial port and waits for the reader goroutine to exit.
func (s *Source) Close() error {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()
	if port == nil {
		return nil
	}

	// closing the port unblocks the pending Read in the reader goroutine
	err := port.Close()
	s.wg.Wait()
	return err
}

func (s *Source) readLoop(port serial.Port) {
	defer s.wg.Done()

	buf := make([]byte, 64)
	frame := make([]byte, 0, 16)
	for {
		n, err := port.Read(buf)
		if err != nil {
			s.mu.Lock()
			closed := s.port == nil
			if !closed {
				s.readErr = errors.Wrapf(err, "reading serial port %s", s.portName)
			}
			s.mu.Unlock()
			if !closed {
				s.logger.Warn("[seriallines] serial read failed",
					zap.Error(err), zap.String("portName", s.portName))
			}
			return
		}

		for _, b := range buf[:n] {
			switch b {
			case '\n':
				s.handleFrame(frame)
				frame = frame[:0]
			case '\r':
			default:
				frame = append(frame, b)
			}
		}
	}
}

func (s *Source) handleFrame(frame []byte) {
	if len(frame) == 0 {
		return
	}
	state, err := parseFrame(frame)
	if err != nil {
		s.logger.Warn("[seriallines] dropping malformed frame",
			zap.Error(err), zap.String("portName", s.portName))
		return
	}
	s.mu.Lock()
	s.latest = state
	s.mu.Unlock()
}

func parseFrame(frame []byte) (scope.LineState, error) {
	parts := strings.Split(string(frame), ",")
	if len(parts) != 4 {
		return scope.LineState{}, &BadFrameError{Frame: append([]byte(nil), frame...)}
	}

	var levels [4]bool
	for i, p := range parts {
		switch strings.TrimSpace(p) {
		case "0":
			levels[i] = false
		case "1":
			levels[i] = true
		default:
			return scope.LineState{}, &BadFrameError{Frame: append([]byte(nil), frame...)}
		}
	}
	return scope.LineState{
		Ch1Pos: levels[0],
		Ch1Neg: levels[1],
		Ch2Pos: levels[2],
		Ch2Neg: levels[3],
	}, nil
}
