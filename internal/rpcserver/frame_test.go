package rpcserver

import (
	"bufio"
	"bytes"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameReaderDetectsNewlineFraming(t *testing.T) {
	in := bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n")
	fr := newFrameReader(bufio.NewReader(in), 0)

	body, err := fr.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, framingNewline, fr.detected)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, string(body))
}

func TestFrameReaderDetectsContentLengthFraming(t *testing.T) {
	payload := `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`
	in := bytes.NewBufferString("Content-Length: " + strconv.Itoa(len(payload)) + "\r\n\r\n" + payload)
	fr := newFrameReader(bufio.NewReader(in), 0)

	body, err := fr.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, framingContentLength, fr.detected)
	assert.JSONEq(t, payload, string(body))
}

func TestFrameReaderToleratesExtraHeadersCaseInsensitively(t *testing.T) {
	payload := `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`
	in := bytes.NewBufferString("X-Trace-Id: abc\r\ncontent-LENGTH: " + strconv.Itoa(len(payload)) + "\r\n\r\n" + payload)
	fr := newFrameReader(bufio.NewReader(in), 0)

	body, err := fr.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(body))
}

func TestFrameReaderRejectsBodyOverMaxSize(t *testing.T) {
	payload := `{"jsonrpc":"2.0","id":4,"method":"tools/list"}`
	in := bytes.NewBufferString("Content-Length: " + strconv.Itoa(len(payload)) + "\r\n\r\n" + payload)
	fr := newFrameReader(bufio.NewReader(in), 4)

	_, err := fr.ReadMessage()
	assert.Error(t, err)
}

func TestWriteMessageRoundTripsBothFramings(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, writeMessage(w, framingContentLength, []byte(`{"ok":true}`)))

	fr := newFrameReader(bufio.NewReader(&buf), 0)
	body, err := fr.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	buf.Reset()
	w = bufio.NewWriter(&buf)
	require.NoError(t, writeMessage(w, framingNewline, []byte(`{"ok":true}`)))
	assert.Equal(t, "{\"ok\":true}\n", buf.String())
}
