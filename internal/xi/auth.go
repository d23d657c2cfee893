package xi

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
)

// cookieScheme is the only authorization protocol the handshake speaks.
const cookieScheme = "MIT-MAGIC-COOKIE-1"

// lookupAuthority finds the magic-cookie entry for a display number in the
// Xauthority file ($XAUTHORITY, falling back to ~/.Xauthority). Any failure
// degrades to no authorization; local servers often accept that.
func lookupAuthority(number string) (string, []byte) {
	path := os.Getenv("XAUTHORITY")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", nil
		}
		path = filepath.Join(home, ".Xauthority")
	}
	f, err := os.Open(path)
	if err != nil {
		return "", nil
	}
	defer f.Close()
	return scanAuthority(bufio.NewReader(f), number)
}

// scanAuthority walks the entry stream: family, then four counted strings
// (address, display number, scheme name, cookie data). The address family
// is deliberately not matched; the first cookie for the display number
// wins.
func scanAuthority(r *bufio.Reader, number string) (string, []byte) {
	for {
		var family [2]byte
		if _, err := io.ReadFull(r, family[:]); err != nil {
			return "", nil
		}
		if _, err := readAuthString(r); err != nil { // address
			return "", nil
		}
		display, err := readAuthString(r)
		if err != nil {
			return "", nil
		}
		name, err := readAuthString(r)
		if err != nil {
			return "", nil
		}
		data, err := readAuthString(r)
		if err != nil {
			return "", nil
		}
		if string(name) != cookieScheme {
			continue
		}
		if d := string(display); d == "" || d == number {
			return string(name), data
		}
	}
}

// readAuthString reads one big-endian length-prefixed field. The file
// format is fixed big-endian regardless of the connection byte order.
func readAuthString(r *bufio.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int(lenBuf[0])<<8 | int(lenBuf[1])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
