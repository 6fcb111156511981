package message

import (
	"chat_relay/internal/model"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type (
	MessageRepo struct {
		collection *mongo.Collection
	}

	messageDoc struct {
		ID        primitive.ObjectID `bson:"_id,omitempty"`
		Sender    string             `bson:"sender"`
		Recipient string             `bson:"recipient"`
		Text      string             `bson:"text,omitempty"`
		File      string             `bson:"file,omitempty"`
		CreatedAt time.Time          `bson:"createdAt"`
	}
)

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{
		collection: db.Collection("messages"),
	}
}

// Record appends one message document and returns it as an immutable record.
// Append-only: nothing in this repo updates or deletes.
func (r *MessageRepo) Record(ctx context.Context, senderID, recipientID, text, attachmentRef string) (*model.MessageRecord, error) {
	doc := messageDoc{
		Sender:    senderID,
		Recipient: recipientID,
		Text:      text,
		File:      attachmentRef,
		CreatedAt: time.Now().UTC(),
	}

	res, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}

	id := res.InsertedID.(primitive.ObjectID)
	return &model.MessageRecord{
		ID:            id.Hex(),
		Sender:        doc.Sender,
		Recipient:     doc.Recipient,
		Text:          doc.Text,
		AttachmentRef: doc.File,
		CreatedAt:     doc.CreatedAt,
	}, nil
}
