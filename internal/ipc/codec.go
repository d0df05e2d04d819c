package ipc

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxPayload is the largest payload a one-byte length prefix can describe.
const MaxPayload = 255

// signalField is the protobuf field number carrying the signal tag.
const signalField protowire.Number = 1

var (
	// ErrProtocol marks a frame whose payload does not decode to a Signal.
	// The connection that produced it must be closed.
	ErrProtocol = errors.New("ipc protocol error")

	// ErrFrameTooLarge is returned when a payload cannot fit one frame.
	ErrFrameTooLarge = errors.New("frame payload exceeds 255 bytes")
)

// Encode returns the frame for sig: one length byte followed by the payload.
func Encode(sig Signal) ([]byte, error) {
	if !sig.Valid() {
		return nil, fmt.Errorf("encode %s: invalid signal", sig)
	}
	return appendFrame(nil, marshalSignal(sig))
}

// Decode reads one frame from the front of buf.
//
// It returns n == 0 with a nil error when buf does not yet hold a complete
// frame. On success n is 1+N and bytes past it belong to the next frame.
func Decode(buf []byte) (Signal, int, error) {
	if len(buf) == 0 {
		return 0, 0, nil
	}
	size := int(buf[0])
	if len(buf)-1 < size {
		return 0, 0, nil
	}

	sig, err := unmarshalSignal(buf[1 : 1+size])
	if err != nil {
		return 0, 0, err
	}
	return sig, 1 + size, nil
}

// WriteSignal writes one encoded frame to w.
func WriteSignal(w io.Writer, sig Signal) error {
	frame, err := Encode(sig)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func appendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, len(payload))
	}
	dst = append(dst, byte(len(payload)))
	return append(dst, payload...), nil
}

func marshalSignal(sig Signal) []byte {
	b := protowire.AppendTag(nil, signalField, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(sig))
}

func unmarshalSignal(payload []byte) (Signal, error) {
	num, typ, n := protowire.ConsumeTag(payload)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrProtocol, protowire.ParseError(n))
	}
	if num != signalField || typ != protowire.VarintType {
		return 0, fmt.Errorf("%w: unexpected field %d type %d", ErrProtocol, num, typ)
	}

	value, m := protowire.ConsumeVarint(payload[n:])
	if m < 0 {
		return 0, fmt.Errorf("%w: %v", ErrProtocol, protowire.ParseError(m))
	}
	if n+m != len(payload) {
		return 0, fmt.Errorf("%w: %d trailing payload bytes", ErrProtocol, len(payload)-n-m)
	}

	if value < uint64(SignalQuery) || value > uint64(SignalOff) {
		return 0, fmt.Errorf("%w: unknown signal tag %d", ErrProtocol, value)
	}
	return Signal(value), nil
}

// Decoder reads frames from a byte stream that may arrive in arbitrary chunks.
type Decoder struct {
	r     io.Reader
	buf   []byte
	chunk []byte
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, chunk: make([]byte, 1+MaxPayload)}
}

// Decode blocks until one full frame is available and returns its Signal.
//
// io.EOF is returned when the stream ends cleanly between frames and
// io.ErrUnexpectedEOF when it ends inside one.
func (d *Decoder) Decode() (Signal, error) {
	for {
		sig, n, err := Decode(d.buf)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			d.buf = append(d.buf[:0], d.buf[n:]...)
			return sig, nil
		}

		read, err := d.r.Read(d.chunk)
		d.buf = append(d.buf, d.chunk[:read]...)
		if read > 0 {
			continue
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(d.buf) == 0 {
				return 0, io.EOF
			}
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
}
