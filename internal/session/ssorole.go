package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cirrus-hq/cirrus/internal/awsconn"
	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/repository"
	"github.com/cirrus-hq/cirrus/internal/vault"
)

// SsoRoleBackend mints credentials for Identity Center role sessions using
// the access token its integration vaulted at login.
type SsoRoleBackend struct {
	repo    repository.Repository
	vault   *vault.Vault
	clients *awsconn.ClientFactory
	now     func() time.Time
}

// NewSsoRoleBackend creates the SSO role credential backend.
func NewSsoRoleBackend(repo repository.Repository, v *vault.Vault, clients *awsconn.ClientFactory) *SsoRoleBackend {
	return &SsoRoleBackend{repo: repo, vault: v, clients: clients, now: time.Now}
}

func (b *SsoRoleBackend) GenerateCredentials(ctx context.Context, sess *core.Session) (*core.Credentials, error) {
	if sess.SsoIntegrationID == "" {
		return nil, fmt.Errorf("sso session %s has no integration", sess.ID)
	}
	integration, err := b.repo.GetAwsSsoIntegration(sess.SsoIntegrationID)
	if err != nil {
		return nil, fmt.Errorf("resolving integration for session %s: %w", sess.ID, err)
	}

	if integration.AccessTokenExpiration == nil || !integration.AccessTokenExpiration.After(b.now()) {
		return nil, fmt.Errorf("sso integration %s is offline: login required", integration.Alias)
	}

	token, err := b.vault.Get(vault.IntegrationKey(integration.ID))
	if err != nil {
		return nil, fmt.Errorf("reading access token for integration %s: %w", integration.ID, err)
	}

	accountID := core.AccountIDFromARN(sess.RoleARN)
	roleName := core.RoleNameFromARN(sess.RoleARN)
	if accountID == "" || roleName == "" {
		return nil, fmt.Errorf("session %s has a malformed role arn: %s", sess.ID, sess.RoleARN)
	}

	rc, err := b.clients.GetRoleCredentials(ctx, integration.Region, string(token), accountID, roleName)
	if err != nil {
		return nil, err
	}
	return &core.Credentials{
		AccessKeyID:     rc.AccessKeyID,
		SecretAccessKey: rc.SecretAccessKey,
		SessionToken:    rc.SessionToken,
		Expiration:      rc.Expiration,
	}, nil
}

// RemoveSecrets is a no-op: the access token belongs to the integration, not
// the session, and outlives individual role sessions.
func (b *SsoRoleBackend) RemoveSecrets(sessionID string) error {
	return nil
}
