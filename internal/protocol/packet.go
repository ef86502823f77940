package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Header layout: type:uint16, jsonLength:uint32, binLength:uint32,
// all big-endian.
const HeaderSize = 10

// Segment limits. A header announcing more than this is treated as a
// corrupt stream and the connection must be closed.
const (
	MaxJSONSegment   = 16 << 20
	MaxBinarySegment = 64 << 20
)

// ErrMalformedHeader is returned by the Decoder when a frame header
// announces an impossible segment length. The byte stream can no longer
// be trusted; callers must close the connection.
var ErrMalformedHeader = fmt.Errorf("protocol: malformed frame header")

// Packet is one framed protocol message. Immutable once built.
type Packet struct {
	Type   MessageType
	JSON   []byte
	Binary []byte
}

// DecodeJSON unmarshals the packet's JSON segment into v. An empty
// segment decodes as an empty object.
func (p *Packet) DecodeJSON(v interface{}) error {
	if len(p.JSON) == 0 {
		return nil
	}
	if err := json.Unmarshal(p.JSON, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", p.Type, err)
	}
	return nil
}

// Encode serializes a packet into wire form.
func Encode(p *Packet) []byte {
	buf := make([]byte, HeaderSize+len(p.JSON)+len(p.Binary))
	binary.BigEndian.PutUint16(buf[0:2], uint16(p.Type))
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(p.JSON)))
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(p.Binary)))
	copy(buf[HeaderSize:], p.JSON)
	copy(buf[HeaderSize+len(p.JSON):], p.Binary)
	return buf
}

// EncodeMessage marshals v as the JSON segment and frames it.
func EncodeMessage(t MessageType, v interface{}, bin []byte) ([]byte, error) {
	var jsonBytes []byte
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", t, err)
		}
		jsonBytes = b
	}
	return Encode(&Packet{Type: t, JSON: jsonBytes, Binary: bin}), nil
}

// Decoder accumulates bytes read from a connection and drains complete
// frames out of them. One Decoder per connection; not safe for
// concurrent use.
type Decoder struct {
	buf bytes.Buffer
}

// Buffered returns the number of bytes held back waiting for the rest
// of a frame.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Drain appends data to the internal buffer and returns every complete
// packet now available. Partial frames stay buffered for the next read.
// A malformed header returns ErrMalformedHeader along with any packets
// decoded before it.
func (d *Decoder) Drain(data []byte) ([]*Packet, error) {
	d.buf.Write(data)

	var packets []*Packet
	for {
		raw := d.buf.Bytes()
		if len(raw) < HeaderSize {
			return packets, nil
		}

		jsonLen := binary.BigEndian.Uint32(raw[2:6])
		binLen := binary.BigEndian.Uint32(raw[6:10])
		if jsonLen > MaxJSONSegment || binLen > MaxBinarySegment {
			return packets, ErrMalformedHeader
		}

		total := HeaderSize + int(jsonLen) + int(binLen)
		if len(raw) < total {
			return packets, nil
		}

		p := &Packet{Type: MessageType(binary.BigEndian.Uint16(raw[0:2]))}
		if jsonLen > 0 {
			p.JSON = make([]byte, jsonLen)
			copy(p.JSON, raw[HeaderSize:HeaderSize+jsonLen])
		}
		if binLen > 0 {
			p.Binary = make([]byte, binLen)
			copy(p.Binary, raw[HeaderSize+int(jsonLen):total])
		}
		d.buf.Next(total)
		packets = append(packets, p)
	}
}
