package server

import (
	"chat_relay/internal/model"
	"chat_relay/internal/utils/log"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var ErrAttachmentDecode = errors.New("attachment decode failed")

type (
	// MessageStore is the append-only persistence collaborator. Record must
	// succeed before anything is delivered.
	MessageStore interface {
		Record(ctx context.Context, senderID, recipientID, text, attachmentRef string) (*model.MessageRecord, error)
	}

	// BlobStore turns raw attachment bytes into an opaque reference.
	BlobStore interface {
		Put(data []byte, suggestedName string) (string, error)
	}

	// Relay validates inbound envelopes, persists them, and fans the
	// resulting record out to every live connection of the recipient.
	Relay struct {
		registry *Registry
		presence *Presence
		store    MessageStore
		blobs    BlobStore
		validate *validator.Validate
	}
)

func NewRelay(registry *Registry, presence *Presence, store MessageStore, blobs BlobStore) *Relay {
	return &Relay{
		registry: registry,
		presence: presence,
		store:    store,
		blobs:    blobs,
		validate: validator.New(),
	}
}

// Relay processes one envelope from a bound connection. Malformed envelopes
// are dropped without telling the sender; a persistence failure aborts the
// whole envelope so nothing is ever delivered unpersisted. Called from the
// sender's read pump, which keeps envelopes from one sender in order.
func (r *Relay) Relay(ctx context.Context, sender *Conn, env model.MessageEnvelope) error {
	if err := r.validate.Struct(&env); err != nil || !env.HasContent() {
		log.Debug("dropping malformed envelope", zap.String("sender", sender.identity.ID))
		return nil
	}

	var attachmentRef string
	if env.File != nil {
		ref, err := r.storeAttachment(env.File)
		if err != nil {
			log.Error("attachment rejected",
				zap.String("sender", sender.identity.ID),
				zap.String("name", env.File.Name),
				zap.Error(err))
			env.File = nil
			if env.Text == "" {
				return nil
			}
		} else {
			attachmentRef = ref
		}
	}

	record, err := r.store.Record(ctx, sender.identity.ID, env.Recipient, env.Text, attachmentRef)
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	frame, err := json.Marshal(model.DeliveryFrame{
		ID:        record.ID,
		Sender:    record.Sender,
		Recipient: record.Recipient,
		Text:      record.Text,
		File:      record.AttachmentRef,
		CreatedAt: record.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal delivery frame: %w", err)
	}

	// Recipient offline means zero connections and zero deliveries; the
	// record is already durable and reachable through message history.
	var stalled []*Conn
	for _, c := range r.registry.ConnectionsFor(env.Recipient) {
		if !c.enqueue(frame) {
			stalled = append(stalled, c)
		}
	}
	if len(stalled) > 0 {
		for _, c := range stalled {
			log.Warn("send buffer full, dropping connection",
				zap.String("userId", c.identity.ID))
			r.registry.Evict(c)
			c.close()
		}
		r.presence.Refresh()
	}
	return nil
}

// storeAttachment decodes the payload (bare base64 or a data URL) and writes
// it to the blob store, returning the reference.
func (r *Relay) storeAttachment(file *model.Attachment) (string, error) {
	payload := file.Data
	if strings.HasPrefix(payload, "data:") {
		if _, after, ok := strings.Cut(payload, ","); ok {
			payload = after
		}
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAttachmentDecode, err)
	}
	return r.blobs.Put(raw, file.Name)
}
