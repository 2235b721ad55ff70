package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrSelectAborted is returned when the picker is cancelled with Ctrl+C or Esc.
var ErrSelectAborted = errors.New("device selection aborted")

// SelectDevice lets the user pick a capture device with the arrow keys.
// A single device is returned without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, errors.New("no capture devices found")
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("device selection needs a terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	i, err := pick(os.Stdin, os.Stdout, "Select input device (↑/↓, Enter to confirm):", names)
	if err != nil {
		return nil, err
	}
	return &devices[i], nil
}

// pick runs the menu loop over raw terminal input.
func pick(in io.Reader, out io.Writer, title string, items []string) (int, error) {
	cursor := 0
	render := func() {
		fmt.Fprintf(out, "\r\x1b[J%s\r\n\r\n", title)
		for i, it := range items {
			if i == cursor {
				fmt.Fprintf(out, "  \x1b[1;36m▶ %s\x1b[0m\r\n", it)
			} else {
				fmt.Fprintf(out, "    %s\r\n", it)
			}
		}
	}
	render()

	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("reading input: %w", err)
		}
		switch {
		case n == 1 && buf[0] == '\r':
			fmt.Fprint(out, "\r\n")
			return cursor, nil
		case n == 1 && (buf[0] == 3 || buf[0] == 0x1b):
			fmt.Fprint(out, "\r\n")
			return 0, ErrSelectAborted
		case n == 1 && buf[0] == 'j', n == 3 && string(buf) == "\x1b[B":
			cursor = min(cursor+1, len(items)-1)
		case n == 1 && buf[0] == 'k', n == 3 && string(buf) == "\x1b[A":
			cursor = max(cursor-1, 0)
		}
		fmt.Fprintf(out, "\x1b[%dA", len(items)+2)
		render()
	}
}
