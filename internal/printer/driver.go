package printer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// ESC/POS framing around the receipt text.
var (
	escInit    = []byte{0x1b, 0x40}       // ESC @
	escFeed    = []byte{0x1b, 0x64, 0x04} // ESC d 4
	escFullCut = []byte{0x1d, 0x56, 0x00} // GS V 0
)

func envelope(receipt []byte) []byte {
	out := make([]byte, 0, len(escInit)+len(receipt)+len(escFeed)+len(escFullCut))
	out = append(out, escInit...)
	out = append(out, receipt...)
	out = append(out, escFeed...)
	out = append(out, escFullCut...)
	return out
}

// NewDriver picks a driver for target:
//
//	""                  no printer; every probe fails with ErrNotConfigured
//	"tcp://host:port"   network printer speaking raw TCP (usually port 9100)
//	anything else       path of a character device such as /dev/usb/lp0
func NewDriver(target string) (Driver, error) {
	switch {
	case target == "":
		return disabledDriver{err: ErrNotConfigured}, nil
	case strings.HasPrefix(target, "tcp://"):
		addr := strings.TrimPrefix(target, "tcp://")
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("invalid printer address %q: %w", target, err)
		}
		return &NetworkDriver{Addr: addr}, nil
	default:
		return &DeviceDriver{Path: target}, nil
	}
}

// OpenDriver is NewDriver for start-up: a target that cannot be used is
// logged and yields a driver whose probe keeps failing with the reason, so
// the adapter starts out unavailable instead of stopping the agent.
func OpenDriver(target string, logger *slog.Logger) Driver {
	d, err := NewDriver(target)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Printer target unusable, printing disabled", "target", target, "error", err)
		return disabledDriver{err: err}
	}
	return d
}

type disabledDriver struct {
	err error
}

func (d disabledDriver) Probe(context.Context) error           { return d.err }
func (d disabledDriver) Execute(context.Context, []byte) error { return d.err }

// DeviceDriver writes receipts to a printer exposed as a file, typically a
// USB line printer device.
type DeviceDriver struct {
	Path string
}

// Probe checks that the device exists and can be opened for writing.
func (d *DeviceDriver) Probe(ctx context.Context) error {
	f, err := os.OpenFile(d.Path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open printer device: %w", err)
	}
	return f.Close()
}

// Execute writes the framed receipt to the device.
// File writes cannot be interrupted; the adapter bounds the wait instead.
func (d *DeviceDriver) Execute(ctx context.Context, receipt []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.OpenFile(d.Path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open printer device: %w", err)
	}
	if _, err := f.Write(envelope(receipt)); err != nil {
		f.Close()
		return fmt.Errorf("write to printer device: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close printer device: %w", err)
	}
	return nil
}

// NetworkDriver sends receipts to an Ethernet printer over a raw TCP socket.
type NetworkDriver struct {
	Addr   string
	Dialer net.Dialer
}

// Probe opens and closes a connection to the printer.
func (n *NetworkDriver) Probe(ctx context.Context) error {
	conn, err := n.Dialer.DialContext(ctx, "tcp", n.Addr)
	if err != nil {
		return fmt.Errorf("dial printer: %w", err)
	}
	return conn.Close()
}

// Execute sends the framed receipt on a fresh connection.
func (n *NetworkDriver) Execute(ctx context.Context, receipt []byte) error {
	conn, err := n.Dialer.DialContext(ctx, "tcp", n.Addr)
	if err != nil {
		return fmt.Errorf("dial printer: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("set printer deadline: %w", err)
		}
	}
	if _, err := conn.Write(envelope(receipt)); err != nil {
		return fmt.Errorf("write to printer: %w", err)
	}
	return nil
}
