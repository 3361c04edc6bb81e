package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFraming(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Encode("message", map[string]string{"chunk": "line one\nline two"}))

	assert.Equal(t, "event: message\ndata: {\"chunk\":\"line one\\nline two\"}\n\n", buf.String())
}

func TestEncodeRejectsBadType(t *testing.T) {
	enc := NewEncoder(io.Discard)
	assert.Error(t, enc.Encode("", nil))
	assert.Error(t, enc.Encode("bad\ntype", nil))
}

func TestEncodeUnmarshalablePayloadWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	err := NewEncoder(&buf).Encode("done", map[string]any{"f": func() {}})
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestDecoderAcrossSingleByteReads(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode("initial", map[string]string{"conversationId": "c1"}))
	require.NoError(t, enc.Encode("message", map[string]string{"id": "a1", "chunk": "Hel"}))
	require.NoError(t, enc.Encode("message", map[string]string{"id": "a1", "chunk": "lo"}))
	require.NoError(t, enc.Encode("done", map[string]string{"conversationId": "c1"}))

	dec := NewDecoder(iotest.OneByteReader(&buf))

	var types []string
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"initial", "message", "message", "done"}, types)
}

func TestDecoderHandlesCRLF(t *testing.T) {
	raw := "event: error\r\ndata: {\"content\":\"boom\"}\r\n\r\n"
	dec := NewDecoder(iotest.HalfReader(strings.NewReader(raw)))

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "error", ev.Type)
	assert.JSONEq(t, `{"content":"boom"}`, string(ev.Data))

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderSkipsIncompleteBlocks(t *testing.T) {
	raw := ": keepalive\n\n" +
		"event: message\n\n" +
		"data: {\"orphan\":true}\n\n" +
		"event: done\ndata: {}\n\n" +
		"event: message\ndata: {\"chunk\":\"cut"

	dec := NewDecoder(strings.NewReader(raw))

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "done", ev.Type)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderReportsMalformedDataAndContinues(t *testing.T) {
	raw := "event: message\ndata: {not json\n\nevent: done\ndata: {}\n\n"
	dec := NewDecoder(strings.NewReader(raw))

	ev, err := dec.Next()
	assert.ErrorIs(t, err, ErrMalformedData)
	assert.Equal(t, "message", ev.Type)

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "done", ev.Type)
}

func TestDecoderPropagatesReadErrors(t *testing.T) {
	boom := errors.New("connection reset")
	dec := NewDecoder(iotest.ErrReader(boom))

	_, err := dec.Next()
	assert.ErrorIs(t, err, boom)
}
