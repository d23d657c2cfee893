package xi

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
)

// maxFrameExtra caps the extended length of a reply or generic event. A
// larger value means the stream is corrupt, not that the server has 16 MiB
// of device state to report.
const maxFrameExtra = 1 << 24

// transport owns one X connection: the socket, the request sequence
// counter, and a reader goroutine that reassembles the byte stream into
// frames. It follows the Conn contract's single-consumer discipline, so
// sequence tracking and the pending-event buffer need no locking.
type transport struct {
	conn net.Conn
	seq  uint16

	frames chan []byte
	done   chan struct{}

	// pending holds event frames set aside while a round trip was waiting
	// for its reply. Drained before the channel on the next poll.
	pending [][]byte

	// readErr is written by the reader before it closes frames; the close
	// publishes it.
	readErr error
}

// dialTransport connects to the display, authenticates, and starts the
// reader.
func dialTransport(display string) (*transport, error) {
	conn, err := connectDisplay(display)
	if err != nil {
		return nil, err
	}
	t := &transport{
		conn:   conn,
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *transport) close() {
	close(t.done)
	t.conn.Close()
}

// =============================================================================
// Connection setup
// =============================================================================

// parseDisplay splits an X display string into host and display number.
// An empty host means the local unix socket.
func parseDisplay(display string) (host, number string, err error) {
	if display == "" {
		display = os.Getenv("DISPLAY")
	}
	if display == "" {
		return "", "", errors.New("xi: no display given and DISPLAY unset")
	}
	colon := strings.LastIndexByte(display, ':')
	if colon < 0 {
		return "", "", fmt.Errorf("xi: malformed display %q", display)
	}
	host = display[:colon]
	number = display[colon+1:]
	if dot := strings.IndexByte(number, '.'); dot >= 0 {
		number = number[:dot] // screen suffix
	}
	if number == "" {
		number = "0"
	}
	if _, err := strconv.Atoi(number); err != nil {
		return "", "", fmt.Errorf("xi: malformed display %q", display)
	}
	return host, number, nil
}

func dialSocket(host, number string) (net.Conn, error) {
	if host == "" || host == "unix" {
		conn, err := net.Dial("unix", "/tmp/.X11-unix/X"+number)
		if err != nil {
			return nil, fmt.Errorf("xi: connect: %w", err)
		}
		return conn, nil
	}
	n, _ := strconv.Atoi(number)
	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(6000+n)))
	if err != nil {
		return nil, fmt.Errorf("xi: connect: %w", err)
	}
	return conn, nil
}

// connectDisplay dials the display's socket and performs the setup
// handshake, once with the Xauthority cookie and once bare if the cookie
// was refused.
func connectDisplay(display string) (net.Conn, error) {
	host, number, err := parseDisplay(display)
	if err != nil {
		return nil, err
	}
	conn, err := dialSocket(host, number)
	if err != nil {
		return nil, err
	}
	name, data := lookupAuthority(number)
	err = handshake(conn, name, data)
	if err == nil {
		return conn, nil
	}
	conn.Close()
	if name == "" {
		return nil, err
	}

	retry, dialErr := dialSocket(host, number)
	if dialErr != nil {
		return nil, err
	}
	if retryErr := handshake(retry, "", nil); retryErr != nil {
		retry.Close()
		return nil, err
	}
	return retry, nil
}

// handshake performs the connection setup exchange. The first byte asks
// for little-endian data; every codec in this package assumes it. The
// setup payload (visuals, screens) is read and discarded; window plumbing
// is not this connection's job.
func handshake(conn net.Conn, authName string, authData []byte) error {
	req := make([]byte, 12+pad4(len(authName))+pad4(len(authData)))
	req[0] = 0x6c
	put16(req[2:], 11) // protocol major
	put16(req[6:], uint16(len(authName)))
	put16(req[8:], uint16(len(authData)))
	copy(req[12:], authName)
	copy(req[12+pad4(len(authName)):], authData)
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("xi: setup write: %w", err)
	}

	var head [8]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return fmt.Errorf("xi: setup read: %w", err)
	}
	body := make([]byte, int(get16(head[6:]))*4)
	if _, err := io.ReadFull(conn, body); err != nil {
		return fmt.Errorf("xi: setup read: %w", err)
	}

	switch head[0] {
	case 0: // refused, head[1] is the reason length
		n := int(head[1])
		if n > len(body) {
			n = len(body)
		}
		return fmt.Errorf("xi: connection refused: %s", strings.TrimSpace(string(body[:n])))
	case 2:
		return errors.New("xi: server demands further authentication")
	}
	if v := get16(head[2:]); v != 11 {
		return fmt.Errorf("xi: unsupported protocol version %d", v)
	}
	return nil
}

// =============================================================================
// Frame stream
// =============================================================================

// readLoop reassembles the server's byte stream into frames. Everything is
// a fixed 32 bytes except replies (code 1) and generic events (code 35),
// which carry an extended length in 4-byte units; the input extension
// delivers all of its events as generic events, so honoring that length is
// what keeps the stream in sync.
func (t *transport) readLoop() {
	r := bufio.NewReader(t.conn)
	for {
		head := make([]byte, 32)
		if _, err := io.ReadFull(r, head); err != nil {
			t.fail(err)
			return
		}
		frame := head
		switch head[0] & 0x7f {
		case 1, geEventCode:
			words := get32(head[4:])
			if words > maxFrameExtra/4 {
				t.fail(fmt.Errorf("implausible frame length %d", words))
				return
			}
			extra := int(words) * 4
			if extra > 0 {
				frame = make([]byte, 32+extra)
				copy(frame, head)
				if _, err := io.ReadFull(r, frame[32:]); err != nil {
					t.fail(err)
					return
				}
			}
		}
		select {
		case t.frames <- frame:
		case <-t.done:
			return
		}
	}
}

func (t *transport) fail(err error) {
	t.readErr = err
	close(t.frames)
}

func (t *transport) lost() error {
	return fmt.Errorf("xi: connection lost: %w", t.readErr)
}

// send writes a request and returns its sequence number. The server counts
// requests modulo 2^16; the first one is number 1.
func (t *transport) send(req []byte) (uint16, error) {
	if _, err := t.conn.Write(req); err != nil {
		return 0, fmt.Errorf("xi: write request: %w", err)
	}
	t.seq++
	return t.seq, nil
}

// roundTrip sends a request and waits for its reply, queuing event frames
// that arrive in between. An error frame with the request's sequence
// number is the request failing.
func (t *transport) roundTrip(req []byte) ([]byte, error) {
	seq, err := t.send(req)
	if err != nil {
		return nil, err
	}
	for frame := range t.frames {
		switch frame[0] & 0x7f {
		case 0:
			if get16(frame[2:]) == seq {
				return nil, decodeWireError(frame)
			}
			// A straggler from an earlier unchecked request; drop it.
		case 1:
			if get16(frame[2:]) == seq {
				return frame, nil
			}
		default:
			t.pending = append(t.pending, frame)
		}
	}
	return nil, t.lost()
}

// checkedVoid sends a request with no reply and surfaces its error, if
// any, by syncing on a GetInputFocus round trip: once the sync reply
// arrives, any error for the void request has already passed by.
func (t *transport) checkedVoid(req []byte) error {
	seq, err := t.send(req)
	if err != nil {
		return err
	}
	syncSeq, err := t.send(getInputFocusRequest())
	if err != nil {
		return err
	}
	var voidErr error
	for frame := range t.frames {
		switch frame[0] & 0x7f {
		case 0:
			if get16(frame[2:]) == seq {
				voidErr = decodeWireError(frame)
			}
		case 1:
			if get16(frame[2:]) == syncSeq {
				return voidErr
			}
		default:
			t.pending = append(t.pending, frame)
		}
	}
	return t.lost()
}

// pollFrame returns the next queued frame without blocking. ok false with
// nil error means the queue is drained.
func (t *transport) pollFrame() (frame []byte, ok bool, err error) {
	if len(t.pending) > 0 {
		frame = t.pending[0]
		t.pending = t.pending[1:]
		return frame, true, nil
	}
	select {
	case frame, open := <-t.frames:
		if !open {
			return nil, false, t.lost()
		}
		return frame, true, nil
	default:
		return nil, false, nil
	}
}

// decodeWireError formats a protocol error frame.
func decodeWireError(f []byte) error {
	return fmt.Errorf("xi: server error %d (request %d minor %d)",
		f[1], f[10], get16(f[8:]))
}
