package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/vault"
)

var _ protocol.CredentialSource = (*CredentialService)(nil)

// CredentialService stores integration secrets encrypted at rest. Reads for
// display are always masked; the only path to plaintext is Credentials, used
// by integration nodes during execution. Plaintext is never logged and never
// leaves a node handler invocation.
type CredentialService struct {
	logger *slog.Logger
	store  persistence.Persistence
	vault  *vault.Vault
}

func NewCredentialService(logger *slog.Logger, store persistence.Persistence, v *vault.Vault) *CredentialService {
	return &CredentialService{
		logger: logger.With("module", "credential_service"),
		store:  store,
		vault:  v,
	}
}

// Create encrypts the fields and persists the credential.
func (s *CredentialService) Create(ctx context.Context, name, integrationType string, fields map[string]any, metadata map[string]any) (*models.Credential, error) {
	if name == "" || integrationType == "" {
		return nil, NewValidationError("credential", ErrValidation)
	}

	blob, err := s.vault.Encrypt(fields)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	credential := &models.Credential{
		ID:              uuid.New().String(),
		Name:            name,
		IntegrationType: integrationType,
		EncryptedData:   blob,
		Metadata:        metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.SaveCredential(ctx, credential); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "credential created",
		"credential_id", credential.ID,
		"integration_type", integrationType,
	)

	return scrub(credential), nil
}

// Update re-encrypts a credential with new fields. Fields are replaced
// wholesale; there is no partial merge with the stored plaintext.
func (s *CredentialService) Update(ctx context.Context, id string, fields map[string]any, metadata map[string]any) (*models.Credential, error) {
	credential, err := s.store.CredentialByID(ctx, id)
	if err != nil {
		return nil, err
	}

	blob, err := s.vault.Encrypt(fields)
	if err != nil {
		return nil, err
	}

	credential.EncryptedData = blob
	if metadata != nil {
		credential.Metadata = metadata
	}

	credential.UpdatedAt = time.Now().UTC()

	if err := s.store.SaveCredential(ctx, credential); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "credential updated", "credential_id", id)

	return scrub(credential), nil
}

// Get returns the credential record plus its fields masked for display.
func (s *CredentialService) Get(ctx context.Context, id string) (*models.Credential, map[string]string, error) {
	credential, err := s.store.CredentialByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	fields, err := s.vault.Decrypt(credential.EncryptedData)
	if err != nil {
		return nil, nil, err
	}

	return scrub(credential), vault.MaskForDisplay(fields, nil), nil
}

// List returns all credential records without their encrypted payloads.
func (s *CredentialService) List(ctx context.Context) ([]*models.Credential, error) {
	credentials, err := s.store.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	for i, credential := range credentials {
		credentials[i] = scrub(credential)
	}

	return credentials, nil
}

func (s *CredentialService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteCredential(ctx, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "credential deleted", "credential_id", id)

	return nil
}

// Credentials resolves decrypted fields for integration nodes. This is the
// protocol.CredentialSource implementation; callers must not retain the map.
func (s *CredentialService) Credentials(ctx context.Context, credentialID string) (map[string]any, error) {
	credential, err := s.store.CredentialByID(ctx, credentialID)
	if err != nil {
		return nil, err
	}

	return s.vault.Decrypt(credential.EncryptedData)
}

// scrub copies a credential without its ciphertext so API responses never
// carry encrypted payloads.
func scrub(credential *models.Credential) *models.Credential {
	clean := *credential
	clean.EncryptedData = nil

	return &clean
}
