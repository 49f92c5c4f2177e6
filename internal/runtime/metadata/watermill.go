package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// FromMessage copies the headers of a Watermill message.
func FromMessage(msg *message.Message) Metadata {
	if msg == nil {
		return Metadata{}
	}
	return Metadata(msg.Metadata).Clone()
}

// ApplyTo writes every entry of m onto the message headers.
func (m Metadata) ApplyTo(msg *message.Message) {
	if msg == nil {
		return
	}
	if msg.Metadata == nil {
		msg.Metadata = make(message.Metadata, len(m))
	}
	for k, v := range m {
		msg.Metadata.Set(k, v)
	}
}
