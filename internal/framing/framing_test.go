package framing

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/extbridge/pkg/schema"
)

func rawFrame(body []byte) []byte {
	buf := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[HeaderSize:], body)
	return buf
}

func TestEncode_PrefixIsLittleEndianLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(map[string]string{"type": "status"}))

	data := buf.Bytes()
	require.Greater(t, len(data), HeaderSize)
	length := binary.LittleEndian.Uint32(data[:HeaderSize])
	assert.Equal(t, len(data)-HeaderSize, int(length))
	assert.JSONEq(t, `{"type":"status"}`, string(data[HeaderSize:]))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	values := []any{
		map[string]any{"action": "load", "path": "/ext/a"},
		[]any{"a", float64(1), true, nil},
		"plain string",
		float64(42),
		map[string]any{"unicode": "héllo ✓", "nested": map[string]any{"k": []any{}}},
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, v := range values {
		require.NoError(t, enc.Encode(v))
	}

	dec := NewDecoder(&buf)
	for _, want := range values {
		var got any
		require.NoError(t, dec.Decode(&got))
		assert.Equal(t, want, got)
	}

	_, err := dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEncode_RejectsOversizedBody(t *testing.T) {
	var buf bytes.Buffer
	big := strings.Repeat("x", MaxBodySize)

	err := NewEncoder(&buf).Encode(big) // quotes push it over the limit
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeFrameTooLarge))
	assert.Zero(t, buf.Len(), "nothing may be written for a rejected frame")
}

func TestEncode_ExactlyMaxBodyIsAccepted(t *testing.T) {
	var buf bytes.Buffer
	body := `"` + strings.Repeat("x", MaxBodySize-2) + `"`

	require.NoError(t, NewEncoder(&buf).WriteFrame([]byte(body)))

	got, err := NewDecoder(&buf).Next()
	require.NoError(t, err)
	assert.Len(t, got, MaxBodySize)
}

func TestEncode_ConcurrentWritesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = enc.Encode(map[string]int{"n": i})
		}(i)
	}
	wg.Wait()

	dec := NewDecoder(&buf)
	seen := make(map[int]bool)
	for {
		var m map[string]int
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		seen[m["n"]] = true
	}
	assert.Len(t, seen, 50)
}

func TestDecode_EmptyFrame(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0, 0, 0, 0})
	stream.Write(rawFrame([]byte(`{"action":"status"}`)))

	dec := NewDecoder(&stream)
	_, err := dec.Next()
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeFrameEmpty))
	assert.True(t, IsProtocolError(err))

	body, err := dec.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"status"}`, string(body))
}

func TestDecode_TooLargeFrameIsSkipped(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(rawFrame(bytes.Repeat([]byte("a"), MaxBodySize+1)))
	stream.Write(rawFrame([]byte(`{"action":"scan"}`)))

	dec := NewDecoder(&stream)
	_, err := dec.Next()
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeFrameTooLarge))
	assert.True(t, IsProtocolError(err))

	body, err := dec.Next()
	require.NoError(t, err, "decoder must resynchronize after an oversized frame")
	assert.JSONEq(t, `{"action":"scan"}`, string(body))
}

func TestDecode_TooLargeFrameReportedBeforeBody(t *testing.T) {
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], 0xFFFFFFFF)

	var stream bytes.Buffer
	stream.Write(header[:])
	stream.Write(rawFrame([]byte(`{"action":"status"}`)))

	dec := NewDecoder(&stream)
	_, err := dec.Next()
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeFrameTooLarge))
	assert.Equal(t, HeaderSize+len(`{"action":"status"}`), stream.Len(), "body must not be read before reporting")

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.NotErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecode_MalformedBody(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(rawFrame([]byte(`{"action":`)))
	stream.Write(rawFrame([]byte(`{"action":"status"}`)))

	dec := NewDecoder(&stream)
	_, err := dec.Next()
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeMalformedBody))

	var req schema.Request
	require.NoError(t, dec.Decode(&req))
	assert.Equal(t, schema.ActionStatus, req.Action)
}

func TestDecode_TypeMismatchIsMalformed(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(rawFrame([]byte(`{"action":42}`)))

	var req schema.Request
	err := NewDecoder(&stream).Decode(&req)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeMalformedBody))
}

func TestDecode_EndOfStream(t *testing.T) {
	t.Run("clean", func(t *testing.T) {
		_, err := NewDecoder(bytes.NewReader(nil)).Next()
		assert.ErrorIs(t, err, io.EOF)
		assert.False(t, IsProtocolError(err))
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := NewDecoder(bytes.NewReader([]byte{5, 0})).Next()
		require.Error(t, err)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.False(t, IsProtocolError(err))
	})

	t.Run("truncated body", func(t *testing.T) {
		frame := rawFrame([]byte(`{"action":"status"}`))
		_, err := NewDecoder(bytes.NewReader(frame[:len(frame)-3])).Next()
		require.Error(t, err)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

// trickleReader hands out one byte per Read to exercise partial reads.
type trickleReader struct{ data []byte }

func (r *trickleReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestDecode_PartialReadsAreBuffered(t *testing.T) {
	payload, err := json.Marshal(map[string]string{"action": "load", "path": "/ext/a"})
	require.NoError(t, err)

	dec := NewDecoder(&trickleReader{data: rawFrame(payload)})
	var req schema.Request
	require.NoError(t, dec.Decode(&req))
	assert.Equal(t, schema.ActionLoad, req.Action)
	assert.Equal(t, "/ext/a", req.Path)
}
