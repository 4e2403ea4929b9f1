package timeline

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/zurustar/notefall/pkg/tempo"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
)

var endOfTrack = []byte{0xFF, 0x2F, 0x00}

// validateChunks walks the SMF chunk table before handing the data to the
// event parser, so a bad header or a truncated track is always reported as
// ErrMalformedInput rather than as whatever the event reader trips over.
func validateChunks(data []byte) error {
	if len(data) < 14 || string(data[0:4]) != "MThd" {
		return fmt.Errorf("%w: missing MThd header", ErrMalformedInput)
	}
	headerLen := int(binary.BigEndian.Uint32(data[4:8]))
	if headerLen < 6 || 8+headerLen > len(data) {
		return fmt.Errorf("%w: bad header length %d", ErrMalformedInput, headerLen)
	}
	format := binary.BigEndian.Uint16(data[8:10])
	if format > 2 {
		return fmt.Errorf("%w: unknown SMF format %d", ErrMalformedInput, format)
	}
	declared := int(binary.BigEndian.Uint16(data[10:12]))
	division := binary.BigEndian.Uint16(data[12:14])
	if division&0x8000 != 0 {
		return fmt.Errorf("%w: SMPTE time division is not supported", ErrMalformedInput)
	}
	if division == 0 {
		return fmt.Errorf("%w: ticks per quarter note must be positive, got 0", tempo.ErrInvalidTempoMap)
	}

	offset := 8 + headerLen
	found := 0
	for offset < len(data) {
		if offset+8 > len(data) {
			return fmt.Errorf("%w: truncated chunk header at offset %d", ErrMalformedInput, offset)
		}
		id := string(data[offset : offset+4])
		length := int(binary.BigEndian.Uint32(data[offset+4 : offset+8]))
		end := offset + 8 + length
		if length < 0 || end > len(data) {
			return fmt.Errorf("%w: chunk %q at offset %d is truncated (%d bytes declared, %d available)",
				ErrMalformedInput, id, offset, length, len(data)-offset-8)
		}
		if id == "MTrk" {
			// a track cut off inside an event loses its End of Track
			if length < 3 || !bytes.Equal(data[end-3:end], endOfTrack) {
				return fmt.Errorf("%w: track %d at offset %d does not end with End of Track", ErrMalformedInput, found, offset)
			}
			found++
		}
		// unknown chunk types are skipped as SMF requires
		offset = end
	}

	if found < declared {
		return fmt.Errorf("%w: header declares %d tracks, found %d", ErrMalformedInput, declared, found)
	}
	return nil
}

// DecodeText converts SMF text meta-event bytes to UTF-8. Valid UTF-8 is kept
// as is; otherwise Shift_JIS is tried (common in Japanese SMF collections) and
// Windows-1252 is the fallback.
func DecodeText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	if decoded, err := japanese.ShiftJIS.NewDecoder().String(s); err == nil && utf8.ValidString(decoded) && !containsReplacement(decoded) {
		return decoded
	}
	if decoded, err := charmap.Windows1252.NewDecoder().String(s); err == nil {
		return decoded
	}
	return s
}

func containsReplacement(s string) bool {
	for _, r := range s {
		if r == utf8.RuneError {
			return true
		}
	}
	return false
}
