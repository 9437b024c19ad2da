package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// DefaultMaxFrameBytes bounds a single frame payload.
const DefaultMaxFrameBytes int64 = 32 << 20

// maxHeaderDigits is enough for any int64 length.
const maxHeaderDigits = 19

// ErrMalformedFrame is returned for a bad length header, an oversized frame or
// a payload cut short by the peer.
var ErrMalformedFrame = errors.New("malformed frame")

// WriteFrame writes payload as "<decimal length>:<payload>".
func WriteFrame(w io.Writer, payload []byte) error {
	header := strconv.AppendInt(nil, int64(len(payload)), 10)
	header = append(header, ':')
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame. A peer that closes the stream before sending
// anything yields io.EOF unchanged.
func ReadFrame(r *bufio.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxFrameBytes
	}

	digits := make([]byte, 0, maxHeaderDigits)
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(digits) > 0 {
				return nil, fmt.Errorf("%w: truncated length header", ErrMalformedFrame)
			}
			return nil, err
		}
		if b == ':' {
			break
		}
		if b < '0' || b > '9' {
			return nil, fmt.Errorf("%w: unexpected byte %q in length header", ErrMalformedFrame, b)
		}
		if len(digits) == maxHeaderDigits {
			return nil, fmt.Errorf("%w: length header too long", ErrMalformedFrame)
		}
		digits = append(digits, b)
	}
	if len(digits) == 0 {
		return nil, fmt.Errorf("%w: empty length header", ErrMalformedFrame)
	}

	size, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if size > max {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMalformedFrame, size, max)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: payload truncated", ErrMalformedFrame)
		}
		return nil, err
	}
	return payload, nil
}
