package session

import (
	"context"

	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/repository"
)

// AzureBackend performs the provider-specific activation work for Azure
// sessions. Concrete token minting is an external collaborator; the core only
// drives the lifecycle around it.
type AzureBackend interface {
	Activate(ctx context.Context, sess *core.Session) error
	Deactivate(ctx context.Context, sess *core.Session) error
}

// AzureService is the non-AWS lifecycle service. It runs the same state
// machine as the AWS services but has no named profile, no exclusivity
// invariant, and no chained dependents, so it does not implement
// ProfileAssignable.
type AzureService struct {
	repo    repository.Repository
	hooks   *Hooks
	backend AzureBackend
}

// NewAzureService builds the Azure lifecycle service over an injected backend.
func NewAzureService(repo repository.Repository, hooks *Hooks, backend AzureBackend) *AzureService {
	return &AzureService{repo: repo, hooks: hooks, backend: backend}
}

var _ Service = (*AzureService)(nil)

func (s *AzureService) Start(ctx context.Context, sessionID string) error {
	sess, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		return err
	}

	if err := s.hooks.Loading(sessionID); err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}
	if err := s.backend.Activate(ctx, sess); err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}
	if err := s.hooks.Activate(sessionID); err != nil {
		s.hooks.Errored(sessionID, err)
	}
	return nil
}

func (s *AzureService) Rotate(ctx context.Context, sessionID string) error {
	sess, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		return err
	}

	if err := s.backend.Activate(ctx, sess); err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}
	if err := s.hooks.Rotated(sessionID); err != nil {
		s.hooks.Errored(sessionID, err)
	}
	return nil
}

func (s *AzureService) Stop(ctx context.Context, sessionID string) error {
	sess, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		return err
	}

	if err := s.backend.Deactivate(ctx, sess); err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}
	if err := s.hooks.Deactivated(sessionID); err != nil {
		s.hooks.Errored(sessionID, err)
	}
	return nil
}

func (s *AzureService) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		return err
	}

	if sess.Status == core.StatusActive {
		if err := s.Stop(ctx, sessionID); err != nil {
			s.hooks.Errored(sessionID, err)
		}
	}

	if err := s.repo.DeleteSession(sessionID); err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}
	s.hooks.Deleted(sessionID)
	return nil
}
