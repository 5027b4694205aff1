package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// APIKey grants programmatic access to a single project. Only the bcrypt
// hash is stored; the plain key is shown once at creation time.
type APIKey struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID string             `bson:"project_id" json:"project_id"`

	KeyPrefix string `bson:"key_prefix" json:"key_prefix"` // first chars, for display only
	KeyHash   string `bson:"key_hash" json:"-"`

	Name string `bson:"name" json:"name"`

	LastUsedAt *time.Time `bson:"last_used_at,omitempty" json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"` // soft delete
	ExpiresAt  *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// IsRevoked returns true if the API key has been revoked
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// IsExpired returns true if the API key has expired
func (k *APIKey) IsExpired() bool {
	if k.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*k.ExpiresAt)
}

// IsValid returns true if the API key is not revoked and not expired
func (k *APIKey) IsValid() bool {
	return !k.IsRevoked() && !k.IsExpired()
}
