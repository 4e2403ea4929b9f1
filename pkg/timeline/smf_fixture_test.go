package timeline

import (
	"bytes"
	"encoding/binary"
)

// trackBuilder assembles MTrk event data with absolute tick positions.
type trackBuilder struct {
	buf  bytes.Buffer
	last int64
}

func (tb *trackBuilder) at(tick int64, event ...byte) *trackBuilder {
	tb.buf.Write(encodeVarInt(int(tick - tb.last)))
	tb.buf.Write(event)
	tb.last = tick
	return tb
}

func (tb *trackBuilder) noteOn(tick int64, ch, key, vel byte) *trackBuilder {
	return tb.at(tick, 0x90|ch, key, vel)
}

func (tb *trackBuilder) noteOff(tick int64, ch, key byte) *trackBuilder {
	return tb.at(tick, 0x80|ch, key, 0x40)
}

func (tb *trackBuilder) tempo(tick int64, microsPerQuarter int) *trackBuilder {
	return tb.at(tick, 0xFF, 0x51, 0x03,
		byte(microsPerQuarter>>16), byte(microsPerQuarter>>8), byte(microsPerQuarter))
}

func (tb *trackBuilder) name(tick int64, raw []byte) *trackBuilder {
	ev := append([]byte{0xFF, 0x03}, encodeVarInt(len(raw))...)
	return tb.at(tick, append(ev, raw...)...)
}

// bytes returns the track data terminated by an End of Track meta event.
func (tb *trackBuilder) bytes() []byte {
	out := append([]byte{}, tb.buf.Bytes()...)
	out = append(out, 0x00, 0xFF, 0x2F, 0x00)
	return out
}

// buildSMF creates a Standard MIDI File with the given time division.
func buildSMF(format, division uint16, tracks ...*trackBuilder) []byte {
	var buf bytes.Buffer
	buf.WriteString("MThd")
	binary.Write(&buf, binary.BigEndian, uint32(6))
	binary.Write(&buf, binary.BigEndian, format)
	binary.Write(&buf, binary.BigEndian, uint16(len(tracks)))
	binary.Write(&buf, binary.BigEndian, division)

	for _, tb := range tracks {
		data := tb.bytes()
		buf.WriteString("MTrk")
		binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		buf.Write(data)
	}
	return buf.Bytes()
}

// encodeVarInt encodes an integer as a variable-length quantity
func encodeVarInt(value int) []byte {
	if value == 0 {
		return []byte{0}
	}

	var result []byte
	for value > 0 {
		b := byte(value & 0x7F)
		value >>= 7
		if len(result) > 0 {
			b |= 0x80
		}
		result = append([]byte{b}, result...)
	}
	return result
}

// rawSMF wraps track bytes as-is (no End of Track added) in a format 0 file.
func rawSMF(track ...byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("MThd")
	binary.Write(&buf, binary.BigEndian, uint32(6))
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, uint16(480))
	buf.WriteString("MTrk")
	binary.Write(&buf, binary.BigEndian, uint32(len(track)))
	buf.Write(track)
	return buf.Bytes()
}
