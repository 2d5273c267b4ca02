package processor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/teslashibe/go-freefield/internal/log"
)

// fakeBridge answers the serial line protocol on the far end of a pipe.
func fakeBridge(t *testing.T, conn net.Conn) <-chan []string {
	t.Helper()
	seen := make(chan []string, 1)
	go func() {
		var lines []string
		tags := map[string]string{}
		sc := bufio.NewScanner(conn)
		sc.Buffer(make([]byte, 1024), 1<<20)
		for sc.Scan() {
			line := sc.Text()
			lines = append(lines, line)
			f := strings.Fields(line)
			var reply string
			switch f[0] {
			case "SET":
				tags[f[1]] = f[2]
				reply = "OK"
			case "WRV":
				if fmt.Sprint(len(f)-3) != f[2] {
					reply = "ERR length mismatch"
				} else {
					reply = "OK"
				}
			case "GET":
				if v, ok := tags[f[1]]; ok {
					reply = "VAL " + v
				} else {
					reply = "ERR unknown tag " + f[1]
				}
			case "TRG", "HLT":
				reply = "OK"
			default:
				reply = "ERR bad command"
			}
			if _, err := fmt.Fprintln(conn, reply); err != nil {
				break
			}
		}
		seen <- lines
	}()
	return seen
}

func TestSerialProcessor_Exchange(t *testing.T) {
	client, device := net.Pipe()
	seen := fakeBridge(t, device)
	p := NewSerial("RP2", client, log.Discard())
	ctx := context.Background()

	if err := p.SetTag(ctx, "response", 4); err != nil {
		t.Fatalf("SetTag: %v", err)
	}
	v, err := p.GetTag(ctx, "response")
	if err != nil {
		t.Fatalf("GetTag: %v", err)
	}
	if v != 4 {
		t.Errorf("response = %v, want 4", v)
	}
	if err := p.WriteTag(ctx, "data0", []float64{0.5, -0.25}); err != nil {
		t.Fatalf("WriteTag: %v", err)
	}
	if err := p.Trigger(ctx, 1); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if err := p.Halt(ctx); err != nil {
		t.Fatalf("Halt: %v", err)
	}

	_, err = p.GetTag(ctx, "missing")
	var de *DeviceError
	if !errors.As(err, &de) || !strings.Contains(de.Err.Error(), "unknown tag") {
		t.Errorf("expected device error from ERR reply, got %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	lines := <-seen
	want := []string{"SET response 4", "GET response", "WRV data0 2 0.5 -0.25", "TRG 1", "HLT", "GET missing"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	if err := p.SetTag(ctx, "x", 1); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

func TestSerialConfig_Mode(t *testing.T) {
	tests := []struct {
		name string
		cfg  SerialConfig
		ok   bool
	}{
		{"default", DefaultSerialConfig("/dev/ttyUSB0"), true},
		{"even parity two stop bits", SerialConfig{BaudRate: 9600, StopBits: 2, Parity: "even"}, true},
		{"bad parity", SerialConfig{Parity: "mark"}, false},
		{"bad stop bits", SerialConfig{StopBits: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := tt.cfg.Mode()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if mode.BaudRate <= 0 || mode.DataBits != 8 {
				t.Errorf("mode = %+v", mode)
			}
		})
	}
}

// scriptedPort is a serial port whose reads time out when no input is
// pending. Each written line appends the next scripted reply, if any.
type scriptedPort struct {
	mu      sync.Mutex
	in      bytes.Buffer
	replies map[string][]string
	resets  int
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.in.Len() == 0 {
		return 0, nil
	}
	return p.in.Read(b)
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := strings.TrimSpace(string(b))
	if q := p.replies[line]; len(q) > 0 {
		if q[0] != "" {
			p.in.WriteString(q[0] + "\n")
		}
		p.replies[line] = q[1:]
	}
	return len(b), nil
}

func (p *scriptedPort) Close() error { return nil }

func (p *scriptedPort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.Reset()
	p.resets++
	return nil
}

// arrive simulates bytes reaching the port after a read gave up.
func (p *scriptedPort) arrive(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.WriteString(s)
}

func TestSerialProcessor_LateReplyAfterTimeout(t *testing.T) {
	port := &scriptedPort{replies: map[string][]string{
		"GET response": {"", "VAL 2"},
	}}
	p := NewSerial("RP2", port, log.Discard())
	ctx := context.Background()

	if _, err := p.GetTag(ctx, "response"); !errors.Is(err, errReadTimeout) {
		t.Fatalf("expected read timeout, got %v", err)
	}
	port.arrive("VAL 1\n")

	v, err := p.GetTag(ctx, "response")
	if err != nil {
		t.Fatalf("GetTag: %v", err)
	}
	if v != 2 {
		t.Errorf("response = %v, want 2: the late reply to the first request was read", v)
	}
	if port.resets != 2 {
		t.Errorf("input flushed %d times, want once per request", port.resets)
	}
}
