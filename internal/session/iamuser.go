package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cirrus-hq/cirrus/internal/awsconn"
	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/vault"
)

// iamUserKeyPair is the long-lived material an IAM user session keeps in the
// vault.
type iamUserKeyPair struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// IamUserBackend mints session credentials for IAM user sessions by
// exchanging the vaulted long-lived key pair through STS GetSessionToken.
type IamUserBackend struct {
	vault        *vault.Vault
	clients      *awsconn.ClientFactory
	durationSecs int32
}

// NewIamUserBackend creates the IAM user credential backend.
func NewIamUserBackend(v *vault.Vault, clients *awsconn.ClientFactory, durationSecs int32) *IamUserBackend {
	return &IamUserBackend{vault: v, clients: clients, durationSecs: durationSecs}
}

// StoreKeyPair vaults the long-lived key pair at session creation.
func (b *IamUserBackend) StoreKeyPair(sessionID, accessKeyID, secretAccessKey string) error {
	data, err := json.Marshal(iamUserKeyPair{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
	})
	if err != nil {
		return fmt.Errorf("encoding key pair: %w", err)
	}
	if err := b.vault.Put(vault.SessionKey(sessionID), data); err != nil {
		return err
	}
	return b.vault.Save()
}

func (b *IamUserBackend) GenerateCredentials(ctx context.Context, sess *core.Session) (*core.Credentials, error) {
	data, err := b.vault.Get(vault.SessionKey(sess.ID))
	if err != nil {
		return nil, fmt.Errorf("reading key pair for session %s: %w", sess.ID, err)
	}

	var pair iamUserKeyPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, fmt.Errorf("decoding key pair for session %s: %w", sess.ID, err)
	}

	return b.clients.GetSessionToken(ctx, pair.AccessKeyID, pair.SecretAccessKey, sess.Region, b.durationSecs)
}

func (b *IamUserBackend) RemoveSecrets(sessionID string) error {
	if err := b.vault.Delete(vault.SessionKey(sessionID)); err != nil {
		return err
	}
	return b.vault.Save()
}
