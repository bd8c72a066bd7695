package nativemsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"pkt.systems/pinkeep/schema"
)

const (
	// MaxOutgoing is the largest message the browser accepts from a host.
	MaxOutgoing = 1 << 20
	// DefaultMaxIncoming caps messages read from the browser.
	DefaultMaxIncoming = 4 << 20
)

// ReadMessage reads one length-prefixed message. The prefix is a uint32 in
// native byte order. io.EOF is returned only when the stream ends cleanly
// between messages.
func ReadMessage(r io.Reader, max int) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read message header: %w", err)
		}
		return nil, err
	}
	size := binary.NativeEndian.Uint32(header[:])
	if max > 0 && uint64(size) > uint64(max) {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", schema.ErrMessageTooLarge, size, max)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read message body: %w", err)
	}
	return payload, nil
}

// WriteMessage writes payload with its length prefix in a single write.
func WriteMessage(w io.Writer, payload []byte) error {
	if len(payload) > MaxOutgoing {
		return fmt.Errorf("%w: %d bytes (max %d)", schema.ErrMessageTooLarge, len(payload), MaxOutgoing)
	}
	frame := make([]byte, 4+len(payload))
	binary.NativeEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)
	_, err := w.Write(frame)
	return err
}
