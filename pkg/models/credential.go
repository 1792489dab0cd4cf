package models

import "time"

// Credential is an encrypted-at-rest secret blob for one integration. The
// plaintext fields exist only transiently inside a node handler invocation
// and are never logged or returned unmasked.
type Credential struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"             validate:"required"`
	IntegrationType string         `json:"integration_type" validate:"required"`
	EncryptedData   []byte         `json:"encrypted_data"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
