package session

import (
	"context"
	"fmt"

	"github.com/cirrus-hq/cirrus/internal/awsconn"
	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/repository"
)

const defaultRoleSessionName = "cirrus-session"

// ChainedBackend mints credentials for chained role sessions: it resolves the
// parent session's service through the factory, generates the parent's
// credentials, and assumes the chained role with them.
type ChainedBackend struct {
	repo         repository.Repository
	factory      *Factory
	clients      *awsconn.ClientFactory
	durationSecs int32
}

// NewChainedBackend creates the chained-role credential backend.
func NewChainedBackend(repo repository.Repository, factory *Factory, clients *awsconn.ClientFactory, durationSecs int32) *ChainedBackend {
	return &ChainedBackend{repo: repo, factory: factory, clients: clients, durationSecs: durationSecs}
}

func (b *ChainedBackend) GenerateCredentials(ctx context.Context, sess *core.Session) (*core.Credentials, error) {
	if sess.ParentSessionID == "" {
		return nil, fmt.Errorf("chained session %s has no parent", sess.ID)
	}

	parent, err := b.repo.GetSessionByID(sess.ParentSessionID)
	if err != nil {
		return nil, fmt.Errorf("resolving parent of session %s: %w", sess.ID, err)
	}

	svc, err := b.factory.ServiceFor(parent.Type)
	if err != nil {
		return nil, err
	}
	gen, ok := svc.(credentialsGenerator)
	if !ok {
		return nil, fmt.Errorf("parent session %s (%s) cannot source credentials", parent.ID, parent.Type)
	}

	parentCreds, err := gen.GenerateCredentials(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("generating parent credentials for session %s: %w", sess.ID, err)
	}

	sessionName := sess.RoleSessionName
	if sessionName == "" {
		sessionName = defaultRoleSessionName
	}
	return b.clients.AssumeRole(ctx, parentCreds, sess.Region, sess.RoleARN, sessionName, b.durationSecs)
}

// RemoveSecrets is a no-op: chained sessions carry no long-lived material of
// their own, only references to the parent.
func (b *ChainedBackend) RemoveSecrets(sessionID string) error {
	return nil
}
