package models

// PayloadFormat identifies how an upstream message payload is encoded.
type PayloadFormat uint8

const (
	FormatJSON     PayloadFormat = 0
	FormatProtobuf PayloadFormat = 1
)

// UpstreamMessage is one logical message cut out of a streaming packet.
type UpstreamMessage struct {
	MessageID   uint64
	ReferenceID string
	Format      PayloadFormat
	Payload     []byte
}
