package session

import (
	"context"
	"fmt"

	"github.com/cirrus-hq/cirrus/internal/awsconn"
	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/repository"
)

// SAMLAssertionProvider obtains a SAML response for an identity-provider
// sign-in URL. Browser-driven flows live outside the core; tests inject a
// canned assertion.
type SAMLAssertionProvider interface {
	Assertion(ctx context.Context, idpURL string) (string, error)
}

// FederatedBackend mints credentials for SAML-federated role sessions: it
// obtains an assertion from the provider registered for the session's IdP URL
// and exchanges it through STS AssumeRoleWithSAML.
type FederatedBackend struct {
	repo         repository.Repository
	assertions   SAMLAssertionProvider
	clients      *awsconn.ClientFactory
	durationSecs int32
}

// NewFederatedBackend creates the federated-role credential backend.
func NewFederatedBackend(repo repository.Repository, assertions SAMLAssertionProvider, clients *awsconn.ClientFactory, durationSecs int32) *FederatedBackend {
	return &FederatedBackend{repo: repo, assertions: assertions, clients: clients, durationSecs: durationSecs}
}

func (b *FederatedBackend) GenerateCredentials(ctx context.Context, sess *core.Session) (*core.Credentials, error) {
	if sess.IdpURLID == "" {
		return nil, fmt.Errorf("federated session %s has no idp url", sess.ID)
	}
	idpURL, err := b.repo.GetIdpUrlByID(sess.IdpURLID)
	if err != nil {
		return nil, fmt.Errorf("resolving idp url for session %s: %w", sess.ID, err)
	}

	assertion, err := b.assertions.Assertion(ctx, idpURL.URL)
	if err != nil {
		return nil, fmt.Errorf("obtaining saml assertion for session %s: %w", sess.ID, err)
	}

	return b.clients.AssumeRoleWithSAML(ctx, sess.Region, sess.IdpARN, sess.RoleARN, assertion, b.durationSecs)
}

// RemoveSecrets is a no-op: the assertion is obtained fresh on every
// generation and never stored.
func (b *FederatedBackend) RemoveSecrets(sessionID string) error {
	return nil
}
