package kiroclient

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// AWS Event Stream binary framing:
//   prelude (12 bytes): total_length(4) + headers_length(4) + prelude_crc(4)
//   headers (variable)
//   payload (variable)
//   message_crc (4 bytes, trailing, not validated)
// Grounded in kiro_response.go's readEventStreamMessage/extractEventTypeFromBytes.
const (
	minFrameSize = 16
	maxFrameSize = 24 * 1024 * 1024
)

type frame struct {
	EventType string
	Payload   []byte
}

// frameError distinguishes a malformed frame from a plain read failure.
// The caller treats both as fatal and ends the stream, since framing
// desync cannot be recovered from mid-stream.
type frameError struct {
	malformed bool
	message   string
	cause     error
}

func (e *frameError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("kiroclient: %s: %v", e.message, e.cause)
	}
	return fmt.Sprintf("kiroclient: %s", e.message)
}

// readFrame reads one AWS Event Stream message from reader. A nil frame and
// nil error together mean a clean end of stream.
func readFrame(reader *bufio.Reader) (*frame, error) {
	prelude := make([]byte, 12)
	if _, err := io.ReadFull(reader, prelude); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, &frameError{message: "read prelude", cause: err}
	}

	totalLength := binary.BigEndian.Uint32(prelude[0:4])
	headersLength := binary.BigEndian.Uint32(prelude[4:8])
	// prelude[8:12] is prelude_crc; left unvalidated, matching the teacher.

	if totalLength < minFrameSize {
		return nil, &frameError{malformed: true, message: fmt.Sprintf("frame too small: %d", totalLength)}
	}
	if totalLength > maxFrameSize {
		return nil, &frameError{malformed: true, message: fmt.Sprintf("frame too large: %d", totalLength)}
	}
	if headersLength > totalLength-16 {
		return nil, &frameError{malformed: true, message: fmt.Sprintf("headers length %d exceeds frame bounds %d", headersLength, totalLength)}
	}

	remaining := make([]byte, totalLength-12)
	if _, err := io.ReadFull(reader, remaining); err != nil {
		return nil, &frameError{message: "read frame body", cause: err}
	}

	var eventType string
	if headersLength > 0 && headersLength <= uint32(len(remaining)) {
		eventType = extractEventType(remaining[:headersLength])
	}

	payloadStart := headersLength
	payloadEnd := uint32(len(remaining)) - 4 // trailing message_crc
	if payloadStart >= payloadEnd {
		return &frame{EventType: eventType}, nil
	}
	return &frame{EventType: eventType, Payload: remaining[payloadStart:payloadEnd]}, nil
}

// extractEventType walks the AWS Event Stream header list looking for the
// ":event-type" string header.
func extractEventType(headers []byte) string {
	offset := 0
	for offset < len(headers) {
		nameLen := int(headers[offset])
		offset++
		if offset+nameLen > len(headers) {
			return ""
		}
		name := string(headers[offset : offset+nameLen])
		offset += nameLen

		if offset >= len(headers) {
			return ""
		}
		valueType := headers[offset]
		offset++

		if valueType == 7 { // string
			if offset+2 > len(headers) {
				return ""
			}
			valueLen := int(binary.BigEndian.Uint16(headers[offset : offset+2]))
			offset += 2
			if offset+valueLen > len(headers) {
				return ""
			}
			value := string(headers[offset : offset+valueLen])
			offset += valueLen
			if name == ":event-type" {
				return value
			}
			continue
		}

		next, ok := skipHeaderValue(headers, offset, valueType)
		if !ok {
			return ""
		}
		offset = next
	}
	return ""
}

func skipHeaderValue(headers []byte, offset int, valueType byte) (int, bool) {
	switch valueType {
	case 0, 1: // bool true/false
		return offset, true
	case 2: // byte
		if offset+1 > len(headers) {
			return offset, false
		}
		return offset + 1, true
	case 3: // short
		if offset+2 > len(headers) {
			return offset, false
		}
		return offset + 2, true
	case 4: // int
		if offset+4 > len(headers) {
			return offset, false
		}
		return offset + 4, true
	case 5: // long
		if offset+8 > len(headers) {
			return offset, false
		}
		return offset + 8, true
	case 6: // byte array
		if offset+2 > len(headers) {
			return offset, false
		}
		valueLen := int(binary.BigEndian.Uint16(headers[offset : offset+2]))
		offset += 2
		if offset+valueLen > len(headers) {
			return offset, false
		}
		return offset + valueLen, true
	case 8: // timestamp
		if offset+8 > len(headers) {
			return offset, false
		}
		return offset + 8, true
	case 9: // uuid
		if offset+16 > len(headers) {
			return offset, false
		}
		return offset + 16, true
	default:
		return offset, false
	}
}
