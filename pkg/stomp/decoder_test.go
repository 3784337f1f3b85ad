package stomp

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderSplitsStream(t *testing.T) {
	stream := "CONNECT\nlogin:a\npasscode:b\n\n\x00\n\nSEND\ndestination:/x\n\nhi\x00"
	d := NewDecoder()

	var frames []string
	for i := 0; i < len(stream); i++ {
		frame, ok, err := d.DecodeNextByte(stream[i])
		require.NoError(t, err)
		if ok {
			frames = append(frames, frame)
		}
	}

	assert.Equal(t, []string{
		"CONNECT\nlogin:a\npasscode:b\n\n",
		"SEND\ndestination:/x\n\nhi",
	}, frames)
}

func TestDecoderNext(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("A\n\n\x00\r\nB\n\nbody\x00"))
	d := NewDecoder()

	first, err := d.Next(r)
	require.NoError(t, err)
	assert.Equal(t, "A\n\n", first)

	second, err := d.Next(r)
	require.NoError(t, err)
	assert.Equal(t, "B\n\nbody", second)

	_, err = d.Next(r)
	assert.Equal(t, io.EOF, err)
}

func TestDecoderUnexpectedEOF(t *testing.T) {
	d := NewDecoder()
	_, err := d.Next(bufio.NewReader(strings.NewReader("SEND\ndest")))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecoderFrameTooLarge(t *testing.T) {
	d := NewDecoderSize(4)
	_, err := d.Next(bytes.NewReader([]byte("ABCDEFG\x00")))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestEncode(t *testing.T) {
	assert.Equal(t, []byte("RECEIPT\nreceipt-id:1\n\n\x00"), Encode(Receipt("1").String()))
	assert.Equal(t, []byte{0}, Encode(""))
}
