// Package framing implements the native-messaging wire format: every frame is a
// 4-byte little-endian body length followed by a UTF-8 JSON body.
package framing

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rendis/extbridge/pkg/schema"
)

const (
	// HeaderSize is the length of the frame prefix in bytes.
	HeaderSize = 4
	// MaxBodySize is the largest body accepted in either direction (1 MiB).
	MaxBodySize = 1 << 20
)

// Encoder writes frames to an underlying writer. Safe for concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode marshals v and writes prefix and body with a single Write call.
func (e *Encoder) Encode(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return schema.NewError(schema.ErrCodeMalformedBody, "encode frame body").WithCause(err)
	}
	return e.WriteFrame(body)
}

// WriteFrame writes an already-encoded JSON body as one frame.
func (e *Encoder) WriteFrame(body []byte) error {
	if len(body) == 0 {
		return schema.NewError(schema.ErrCodeFrameEmpty, "refusing to write empty frame")
	}
	if len(body) > MaxBodySize {
		return schema.NewErrorf(schema.ErrCodeFrameTooLarge,
			"frame body of %d bytes exceeds maximum %d", len(body), MaxBodySize)
	}

	buf := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[:HeaderSize], uint32(len(body)))
	copy(buf[HeaderSize:], body)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Decoder reads frames from an underlying reader. Not safe for concurrent use.
type Decoder struct {
	r      io.Reader
	header [HeaderSize]byte
	// skip is the unread remainder of an oversized frame, consumed on the
	// following Next call.
	skip int64
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next blocks until a complete frame is available and returns its body.
//
// It returns io.EOF when the stream ends cleanly between frames and
// io.ErrUnexpectedEOF when it ends inside one. Empty, oversized and non-JSON
// frames yield a protocol error (see IsProtocolError); the stream stays aligned
// on the next frame boundary so the caller may keep reading. An oversized frame
// is reported as soon as its header arrives; its body is discarded by the next
// call, and a stream that ends inside that body ends cleanly with io.EOF.
func (d *Decoder) Next() (json.RawMessage, error) {
	if d.skip > 0 {
		n, err := io.CopyN(io.Discard, d.r, d.skip)
		d.skip -= n
		if err != nil {
			if errors.Is(err, io.EOF) {
				// The sender went away inside a frame already reported as too large.
				d.skip = 0
				return nil, io.EOF
			}
			return nil, fmt.Errorf("discard oversized frame: %w", err)
		}
	}

	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.LittleEndian.Uint32(d.header[:])
	if length == 0 {
		return nil, schema.NewError(schema.ErrCodeFrameEmpty, "frame advertises zero-length body")
	}
	if length > MaxBodySize {
		d.skip = int64(length)
		return nil, schema.NewErrorf(schema.ErrCodeFrameTooLarge,
			"frame advertises %d bytes, maximum is %d", length, MaxBodySize).
			WithDetails(map[string]any{"length": length})
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", unexpected(err))
	}
	if !json.Valid(body) {
		return nil, schema.NewError(schema.ErrCodeMalformedBody, "frame body is not valid JSON")
	}
	return body, nil
}

// Decode reads the next frame and unmarshals it into v.
func (d *Decoder) Decode(v any) error {
	body, err := d.Next()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return schema.NewError(schema.ErrCodeMalformedBody, "decode frame body").WithCause(err)
	}
	return nil
}

// IsProtocolError reports whether err describes a bad frame after which
// decoding can continue, as opposed to a broken transport.
func IsProtocolError(err error) bool {
	return schema.HasCode(err, schema.ErrCodeFrameEmpty) ||
		schema.HasCode(err, schema.ErrCodeFrameTooLarge) ||
		schema.HasCode(err, schema.ErrCodeMalformedBody)
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
