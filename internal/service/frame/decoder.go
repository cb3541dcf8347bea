package frame

import (
	"encoding/binary"
	"fmt"

	json "github.com/goccy/go-json"

	"SaxoBridge/internal/domain/models"
	"SaxoBridge/internal/domain/repository"
	"SaxoBridge/pkg/logger"
)

// Layout of one message inside a streaming packet:
//
//	message id      uint64 LE
//	reserved        2 bytes
//	refid length    uint8
//	refid           ASCII
//	payload format  uint8
//	payload length  uint32 LE
//	payload
const (
	idSize       = 8
	reservedSize = 2
	headerSize   = idSize + reservedSize + 1
	lengthSize   = 4
)

// Decoder cuts binary streaming packets into upstream messages.
type Decoder struct {
	logger  *logger.Logger
	metrics repository.Metrics
}

// NewDecoder creates a decoder. Both arguments may be nil.
func NewDecoder(l *logger.Logger, m repository.Metrics) *Decoder {
	return &Decoder{logger: l, metrics: m}
}

// Decode returns every well-formed message in packet, in order.
// Messages with an unsupported format or invalid JSON are skipped. A length
// field pointing past the end of the packet abandons the rest of it: the
// messages decoded so far are returned together with an error wrapping
// models.ErrProtocolDecode. Payloads alias packet.
func (d *Decoder) Decode(packet []byte) ([]models.UpstreamMessage, error) {
	var out []models.UpstreamMessage
	pos := 0
	for pos < len(packet) {
		msg, next, err := readMessage(packet, pos)
		if err != nil {
			d.recordError("frame_truncated")
			return out, err
		}
		pos = next

		if msg.Format != models.FormatJSON {
			d.logger.Warn("unsupported payload format",
				logger.String("reference_id", msg.ReferenceID),
				logger.Int("format", int(msg.Format)),
				logger.Uint64("message_id", msg.MessageID))
			d.recordError("unsupported_format")
			continue
		}
		if !json.Valid(msg.Payload) {
			d.logger.Warn("dropping malformed payload",
				logger.String("reference_id", msg.ReferenceID),
				logger.Uint64("message_id", msg.MessageID))
			d.recordError("payload_json")
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (d *Decoder) recordError(kind string) {
	if d.metrics != nil {
		d.metrics.RecordError(kind)
	}
}

func readMessage(b []byte, pos int) (models.UpstreamMessage, int, error) {
	var msg models.UpstreamMessage
	if len(b)-pos < headerSize {
		return msg, pos, truncated(pos, "header")
	}
	msg.MessageID = binary.LittleEndian.Uint64(b[pos:])
	pos += idSize + reservedSize

	refLen := int(b[pos])
	pos++
	if len(b)-pos < refLen+1+lengthSize {
		return msg, pos, truncated(pos, "reference id")
	}
	msg.ReferenceID = string(b[pos : pos+refLen])
	pos += refLen

	msg.Format = models.PayloadFormat(b[pos])
	pos++

	size := binary.LittleEndian.Uint32(b[pos:])
	pos += lengthSize
	if uint64(size) > uint64(len(b)-pos) {
		return msg, pos, fmt.Errorf("%w: payload of %d bytes at offset %d exceeds packet",
			models.ErrProtocolDecode, size, pos)
	}
	msg.Payload = b[pos : pos+int(size)]
	return msg, pos + int(size), nil
}

func truncated(pos int, part string) error {
	return fmt.Errorf("%w: truncated %s at offset %d", models.ErrProtocolDecode, part, pos)
}

// Encode builds the wire form of msgs. It is the inverse of Decode.
func Encode(msgs ...models.UpstreamMessage) []byte {
	var buf []byte
	for _, m := range msgs {
		buf = binary.LittleEndian.AppendUint64(buf, m.MessageID)
		buf = append(buf, 0, 0)
		buf = append(buf, byte(len(m.ReferenceID)))
		buf = append(buf, m.ReferenceID...)
		buf = append(buf, byte(m.Format))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Payload)))
		buf = append(buf, m.Payload...)
	}
	return buf
}
