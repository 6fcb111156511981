package model

import "go.mongodb.org/mongo-driver/bson/primitive"

type (
	User struct {
		ID       primitive.ObjectID `bson:"_id,omitempty"`
		Username string             `bson:"username"`
	}

	// Identity is a bound principal: the stable user id plus display name.
	// Immutable once attached to a connection.
	Identity struct {
		ID          string
		DisplayName string
	}

	PresenceEntry struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
	}

	// PresenceFrame is pushed to every live connection after each admit
	// and each eviction.
	PresenceFrame struct {
		Online []PresenceEntry `json:"online"`
	}
)
