package model

import "time"

type (
	// Attachment is the inline file payload of an envelope. Data carries
	// either a base64 data URL ("data:image/png;base64,....") or bare base64.
	Attachment struct {
		Name string `json:"name" validate:"required"`
		Data string `json:"data" validate:"required"`
	}

	// MessageEnvelope is the untrusted inbound frame read off a connection.
	// At least one of Text or File must be set, on top of the tag rules.
	MessageEnvelope struct {
		Recipient string      `json:"recipient" validate:"required"`
		Text      string      `json:"text,omitempty"`
		File      *Attachment `json:"file,omitempty"`
	}

	// MessageRecord is a persisted message as returned by the message store.
	MessageRecord struct {
		ID            string
		Sender        string
		Recipient     string
		Text          string
		AttachmentRef string
		CreatedAt     time.Time
	}

	// DeliveryFrame is what every live connection of the recipient receives
	// once a record has been persisted.
	DeliveryFrame struct {
		ID        string    `json:"_id"`
		Sender    string    `json:"sender"`
		Recipient string    `json:"recipient"`
		Text      string    `json:"text,omitempty"`
		File      string    `json:"file,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}
)

// HasContent reports whether the envelope still carries anything deliverable.
func (e *MessageEnvelope) HasContent() bool {
	return e.Text != "" || e.File != nil
}
