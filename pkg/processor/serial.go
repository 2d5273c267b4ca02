package processor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialConfig describes a processor bridged over a serial line.
//
// The bridge speaks one request line and one reply line per operation:
//
//	SET <tag> <value>          -> OK
//	WRV <tag> <n> <v1> .. <vn> -> OK
//	GET <tag>                  -> VAL <value>
//	TRG <n>                    -> OK
//	HLT                        -> OK
//
// Failures are reported as "ERR <message>".
type SerialConfig struct {
	Port        string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

// DefaultSerialConfig returns 115200 8N1 with a 2 s read timeout.
func DefaultSerialConfig(port string) SerialConfig {
	return SerialConfig{
		Port:        port,
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      "N",
		ReadTimeout: 2 * time.Second,
		Logger:      slog.Default(),
	}
}

// Mode converts the config into a serial.Mode.
func (c SerialConfig) Mode() (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: c.BaudRate, DataBits: c.DataBits}
	if mode.BaudRate <= 0 {
		mode.BaudRate = 115200
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	switch c.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("processor: unsupported stop bits %d", c.StopBits)
	}
	switch strings.ToUpper(strings.TrimSpace(c.Parity)) {
	case "", "N", "NONE":
		mode.Parity = serial.NoParity
	case "E", "EVEN":
		mode.Parity = serial.EvenParity
	case "O", "ODD":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("processor: unsupported parity %q", c.Parity)
	}
	return mode, nil
}

// SerialProcessor implements Processor over a line protocol.
type SerialProcessor struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	rwc    io.ReadWriteCloser
	r      *bufio.Reader
	closed bool
}

// OpenSerial opens the port described by cfg.
func OpenSerial(name string, cfg SerialConfig) (*SerialProcessor, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, wrap(name, "open "+cfg.Port, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, wrap(name, "set read timeout", err)
		}
	}
	return NewSerial(name, port, cfg.Logger), nil
}

// NewSerial wraps an already open stream.
func NewSerial(name string, rwc io.ReadWriteCloser, logger *slog.Logger) *SerialProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SerialProcessor{
		name:   name,
		logger: logger.With("processor", name),
		rwc:    rwc,
		r:      bufio.NewReader(timeoutReader{rwc}),
	}
}

// Name implements Processor.
func (p *SerialProcessor) Name() string { return p.name }

// SetTag implements Processor.
func (p *SerialProcessor) SetTag(ctx context.Context, tag string, value float64) error {
	_, err := p.exchange(ctx, "set "+tag, "SET "+tag+" "+formatFloat(value))
	return err
}

// WriteTag implements Processor.
func (p *SerialProcessor) WriteTag(ctx context.Context, tag string, data []float64) error {
	var b strings.Builder
	b.Grow(len(data)*12 + 16)
	b.WriteString("WRV ")
	b.WriteString(tag)
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(len(data)))
	for _, v := range data {
		b.WriteByte(' ')
		b.WriteString(formatFloat(v))
	}
	_, err := p.exchange(ctx, "write "+tag, b.String())
	return err
}

// GetTag implements Processor.
func (p *SerialProcessor) GetTag(ctx context.Context, tag string) (float64, error) {
	reply, err := p.exchange(ctx, "get "+tag, "GET "+tag)
	if err != nil {
		return 0, err
	}
	val, ok := strings.CutPrefix(reply, "VAL ")
	if !ok {
		return 0, wrap(p.name, "get "+tag, fmt.Errorf("unexpected reply %q", reply))
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return 0, wrap(p.name, "get "+tag, err)
	}
	return v, nil
}

// Trigger implements Processor.
func (p *SerialProcessor) Trigger(ctx context.Context, n int) error {
	_, err := p.exchange(ctx, "trigger", "TRG "+strconv.Itoa(n))
	return err
}

// Halt implements Processor.
func (p *SerialProcessor) Halt(ctx context.Context) error {
	_, err := p.exchange(ctx, "halt", "HLT")
	return err
}

// Close closes the underlying port.
func (p *SerialProcessor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.rwc.Close()
}

func (p *SerialProcessor) exchange(ctx context.Context, op, line string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", wrap(p.name, op, ErrClosed)
	}

	if err := p.flushInput(); err != nil {
		return "", wrap(p.name, op, err)
	}
	if _, err := io.WriteString(p.rwc, line+"\n"); err != nil {
		return "", wrap(p.name, op, err)
	}
	reply, err := p.r.ReadString('\n')
	if err != nil {
		return "", wrap(p.name, op, err)
	}
	reply = strings.TrimSpace(reply)
	p.logger.Debug("serial exchange", "op", op, "reply", reply)

	if msg, ok := strings.CutPrefix(reply, "ERR"); ok {
		return "", wrap(p.name, op, errors.New(strings.TrimSpace(msg)))
	}
	if reply != "OK" && !strings.HasPrefix(reply, "VAL ") {
		return "", wrap(p.name, op, fmt.Errorf("unexpected reply %q", reply))
	}
	return reply, nil
}

// inputFlusher is implemented by serial.Port.
type inputFlusher interface {
	ResetInputBuffer() error
}

var _ inputFlusher = serial.Port(nil)

// flushInput drops stale input, such as a reply that arrived after the
// previous read timed out, so it is not taken for the next answer.
func (p *SerialProcessor) flushInput() error {
	if n := p.r.Buffered(); n > 0 {
		p.r.Discard(n)
	}
	if f, ok := p.rwc.(inputFlusher); ok {
		return f.ResetInputBuffer()
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// errReadTimeout is returned when the port read timeout elapses.
var errReadTimeout = errors.New("read timeout")

// timeoutReader turns the (0, nil) reads that serial ports return on
// timeout into an error, so bufio does not spin.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(b []byte) (int, error) {
	n, err := t.r.Read(b)
	if n == 0 && err == nil {
		return 0, errReadTimeout
	}
	return n, err
}
