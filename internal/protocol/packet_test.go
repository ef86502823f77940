package protocol

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		in := &Packet{
			Type:   MsgText,
			JSON:   []byte(`{"content":"hello"}`),
			Binary: []byte{0x01, 0x02, 0x03},
		}

		var dec Decoder
		packets, err := dec.Drain(Encode(in))
		require.NoError(t, err)
		require.Len(t, packets, 1)

		assert.Equal(t, in.Type, packets[0].Type)
		assert.Equal(t, in.JSON, packets[0].JSON)
		assert.Equal(t, in.Binary, packets[0].Binary)
		assert.Zero(t, dec.Buffered())
	})

	t.Run("RoundTrip_EmptySegments", func(t *testing.T) {
		var dec Decoder
		packets, err := dec.Drain(Encode(&Packet{Type: MsgHeartbeat}))
		require.NoError(t, err)
		require.Len(t, packets, 1)
		assert.Equal(t, MsgHeartbeat, packets[0].Type)
		assert.Empty(t, packets[0].JSON)
		assert.Empty(t, packets[0].Binary)
	})

	t.Run("PartialReads", func(t *testing.T) {
		wire := Encode(&Packet{
			Type:   MsgVideoFrame,
			JSON:   []byte(`{"seq":42}`),
			Binary: make([]byte, 1024),
		})

		var dec Decoder
		for i := 0; i < len(wire)-1; i++ {
			packets, err := dec.Drain(wire[i : i+1])
			require.NoError(t, err)
			assert.Empty(t, packets, "no packet should surface before the final byte")
		}

		packets, err := dec.Drain(wire[len(wire)-1:])
		require.NoError(t, err)
		require.Len(t, packets, 1)
		assert.Equal(t, MsgVideoFrame, packets[0].Type)
		assert.Len(t, packets[0].Binary, 1024)
	})

	t.Run("MultiplePacketsInOneRead", func(t *testing.T) {
		wire := append(
			Encode(&Packet{Type: MsgText, JSON: []byte(`{"content":"a"}`)}),
			Encode(&Packet{Type: MsgText, JSON: []byte(`{"content":"b"}`)})...,
		)

		var dec Decoder
		packets, err := dec.Drain(wire)
		require.NoError(t, err)
		require.Len(t, packets, 2)
		assert.Equal(t, []byte(`{"content":"a"}`), packets[0].JSON)
		assert.Equal(t, []byte(`{"content":"b"}`), packets[1].JSON)
	})

	t.Run("TrailingPartialStaysBuffered", func(t *testing.T) {
		first := Encode(&Packet{Type: MsgText, JSON: []byte(`{"content":"a"}`)})
		second := Encode(&Packet{Type: MsgText, JSON: []byte(`{"content":"bb"}`)})
		wire := append(append([]byte{}, first...), second[:5]...)

		var dec Decoder
		packets, err := dec.Drain(wire)
		require.NoError(t, err)
		require.Len(t, packets, 1)
		assert.Equal(t, 5, dec.Buffered())

		packets, err = dec.Drain(second[5:])
		require.NoError(t, err)
		require.Len(t, packets, 1)
		assert.Equal(t, []byte(`{"content":"bb"}`), packets[0].JSON)
	})

	t.Run("MalformedHeader", func(t *testing.T) {
		header := make([]byte, HeaderSize)
		binary.BigEndian.PutUint16(header[0:2], uint16(MsgText))
		binary.BigEndian.PutUint32(header[2:6], MaxJSONSegment+1)

		var dec Decoder
		_, err := dec.Drain(header)
		assert.ErrorIs(t, err, ErrMalformedHeader)
	})

	t.Run("MalformedHeader_AfterValidPacket", func(t *testing.T) {
		bad := make([]byte, HeaderSize)
		binary.BigEndian.PutUint32(bad[6:10], MaxBinarySegment+1)
		wire := append(Encode(&Packet{Type: MsgHeartbeat}), bad...)

		var dec Decoder
		packets, err := dec.Drain(wire)
		assert.ErrorIs(t, err, ErrMalformedHeader)
		require.Len(t, packets, 1, "packets framed before the corruption are still delivered")
	})
}

func TestEncodeMessage(t *testing.T) {
	wire, err := EncodeMessage(MsgText, map[string]string{"content": "hi"}, nil)
	require.NoError(t, err)

	var dec Decoder
	packets, err := dec.Drain(wire)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	var payload map[string]string
	require.NoError(t, packets[0].DecodeJSON(&payload))
	assert.Equal(t, "hi", payload["content"])
}

func TestResponseEnvelope(t *testing.T) {
	t.Run("FlattensData", func(t *testing.T) {
		raw, err := json.Marshal(Response{
			Code:    CodeOK,
			Message: "ok",
			Data:    map[string]interface{}{"ticket_id": "WO-20260829-0001"},
		})
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, float64(0), decoded["code"])
		assert.Equal(t, "ok", decoded["message"])
		assert.Equal(t, "WO-20260829-0001", decoded["ticket_id"])
	})

	t.Run("RoundTrip", func(t *testing.T) {
		raw, err := json.Marshal(Response{Code: CodeForbidden, Message: "not authenticated"})
		require.NoError(t, err)

		var resp Response
		require.NoError(t, json.Unmarshal(raw, &resp))
		assert.Equal(t, CodeForbidden, resp.Code)
		assert.False(t, resp.OK())
	})
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "LOGIN", MsgLogin.String())
	assert.Equal(t, "VIDEO_FRAME", MsgVideoFrame.String())
	assert.Equal(t, "UNKNOWN(0xBEEF)", MessageType(0xBEEF).String())
}
