package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"promptlens/internal/database"
	"promptlens/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyPrefix is the prefix for all API keys
	APIKeyPrefix = "plk_"
	// APIKeyLength is the length of the random part of the key (32 bytes = 64 hex chars)
	APIKeyLength = 32
	// APIKeyPrefixLength is how many chars to show as prefix (including "plk_")
	APIKeyPrefixLength = 12
)

// APIKeyService verifies project-scoped API keys. Key issuance and project
// management live in the platform's identity service; this service only
// creates keys for local development and validates incoming ones.
type APIKeyService struct {
	mongoDB *database.MongoDB
}

// NewAPIKeyService creates a new API key service
func NewAPIKeyService(mongoDB *database.MongoDB) *APIKeyService {
	return &APIKeyService{mongoDB: mongoDB}
}

// collection returns the api_keys collection
func (s *APIKeyService) collection() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionAPIKeys)
}

// GenerateKey generates a new API key
func (s *APIKeyService) GenerateKey() (string, error) {
	bytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(bytes), nil
}

// HashKey hashes an API key for storage
func (s *APIKeyService) HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// VerifyKey verifies an API key against a hash
func (s *APIKeyService) VerifyKey(key, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	return err == nil
}

// Create creates a new API key for a project. The plain key is returned
// exactly once; only the hash is stored.
func (s *APIKeyService) Create(ctx context.Context, projectID, name string) (string, *models.APIKey, error) {
	key, err := s.GenerateKey()
	if err != nil {
		return "", nil, err
	}

	hash, err := s.HashKey(key)
	if err != nil {
		return "", nil, err
	}

	apiKey := &models.APIKey{
		ProjectID: projectID,
		KeyPrefix: key[:APIKeyPrefixLength],
		KeyHash:   hash,
		Name:      name,
		CreatedAt: time.Now(),
	}

	result, err := s.collection().InsertOne(ctx, apiKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create API key: %w", err)
	}
	apiKey.ID = result.InsertedID.(primitive.ObjectID)

	log.Printf("🔑 [APIKEY] Created API key %s for project %s (prefix: %s)",
		apiKey.ID.Hex(), projectID, apiKey.KeyPrefix)

	return key, apiKey, nil
}

// ValidateKey validates an API key and returns the key record
func (s *APIKeyService) ValidateKey(ctx context.Context, key string) (*models.APIKey, error) {
	if len(key) < APIKeyPrefixLength {
		return nil, fmt.Errorf("invalid API key format")
	}

	// Find by prefix (there could be multiple with same prefix, but unlikely)
	cursor, err := s.collection().Find(ctx, bson.M{
		"key_prefix": key[:APIKeyPrefixLength],
		"revoked_at": bson.M{"$exists": false},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lookup API key: %w", err)
	}
	defer cursor.Close(ctx)

	// Check each matching key (usually just one)
	for cursor.Next(ctx) {
		var apiKey models.APIKey
		if err := cursor.Decode(&apiKey); err != nil {
			continue
		}

		if s.VerifyKey(key, apiKey.KeyHash) {
			if apiKey.IsExpired() {
				return nil, fmt.Errorf("API key has expired")
			}

			// Update last used
			go s.updateLastUsed(context.Background(), apiKey.ID)

			return &apiKey, nil
		}
	}

	return nil, fmt.Errorf("invalid API key")
}

// Revoke soft-deletes an API key
func (s *APIKeyService) Revoke(ctx context.Context, projectID string, keyID primitive.ObjectID) error {
	result, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": keyID, "project_id": projectID},
		bson.M{"$set": bson.M{"revoked_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNoData
	}
	return nil
}

// updateLastUsed updates the last used timestamp
func (s *APIKeyService) updateLastUsed(ctx context.Context, keyID primitive.ObjectID) {
	_, err := s.collection().UpdateByID(ctx, keyID, bson.M{
		"$set": bson.M{
			"last_used_at": time.Now(),
		},
	})
	if err != nil {
		log.Printf("⚠️ [APIKEY] Failed to update last used: %v", err)
	}
}
