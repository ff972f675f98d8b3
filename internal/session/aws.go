package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/repository"
)

// CredentialBackend mints and disposes the credential material for one AWS
// session type. Backends never touch session status; the service owns
// transitions.
type CredentialBackend interface {
	GenerateCredentials(ctx context.Context, sess *core.Session) (*core.Credentials, error)
	RemoveSecrets(sessionID string) error
}

// AwsService is the AWS-family lifecycle service. One instance exists per AWS
// session type, differing only in the backend that generates credentials;
// the start/stop/rotate/delete protocol and the same-profile exclusivity
// invariant are shared.
type AwsService struct {
	repo    repository.Repository
	hooks   *Hooks
	factory *Factory
	backend CredentialBackend
	applier Applier
	locks   *ProfileLocks
	logger  zerolog.Logger
}

// NewAwsService builds the AWS lifecycle service over a type-specific backend.
func NewAwsService(repo repository.Repository, hooks *Hooks, factory *Factory, backend CredentialBackend, applier Applier, locks *ProfileLocks, logger zerolog.Logger) *AwsService {
	return &AwsService{
		repo:    repo,
		hooks:   hooks,
		factory: factory,
		backend: backend,
		applier: applier,
		locks:   locks,
		logger:  logger,
	}
}

var (
	_ Service                     = (*AwsService)(nil)
	_ Restarter                   = (*AwsService)(nil)
	_ ProfileAssignable           = (*AwsService)(nil)
	_ ProcessCredentialsGenerator = (*AwsService)(nil)
	_ credentialsGenerator        = (*AwsService)(nil)
)

// Start activates the session: it enforces the same-profile exclusivity
// invariant, stops any other active session on the same profile, then runs
// pending -> generate -> apply -> active. The pending-session precondition is
// the only error returned to the caller; everything after it routes to the
// error hook.
func (s *AwsService) Start(ctx context.Context, sessionID string) error {
	return s.start(ctx, sessionID, true)
}

// Restart is Start without the pending-session precondition, for cascades
// that stopped the session themselves and must bring it back.
func (s *AwsService) Restart(ctx context.Context, sessionID string) error {
	return s.start(ctx, sessionID, false)
}

func (s *AwsService) start(ctx context.Context, sessionID string, checkPending bool) error {
	sess, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(sess.ProfileID)
	defer unlock()

	if checkPending {
		pending, err := s.repo.ListPending()
		if err != nil {
			return err
		}
		for _, p := range pending {
			if p.ID != sess.ID && p.ProfileID == sess.ProfileID {
				return core.ErrPendingSameProfile
			}
		}
	}

	active, err := s.repo.ListActive()
	if err != nil {
		return err
	}
	for _, a := range active {
		if a.ID == sess.ID || a.ProfileID != sess.ProfileID {
			continue
		}
		svc, err := s.factory.ServiceFor(a.Type)
		if err != nil {
			s.hooks.Errored(a.ID, err)
			continue
		}
		if err := svc.Stop(ctx, a.ID); err != nil {
			s.hooks.Errored(a.ID, err)
		}
	}

	if err := s.hooks.Loading(sessionID); err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}

	creds, err := s.backend.GenerateCredentials(ctx, sess)
	if err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}
	if err := s.applyCredentials(sess, creds); err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}

	if err := s.hooks.Activate(sessionID); err != nil {
		s.hooks.Errored(sessionID, err)
	}
	return nil
}

// Rotate refreshes the session's credentials in place. No exclusivity check:
// the session already owns its profile.
func (s *AwsService) Rotate(ctx context.Context, sessionID string) error {
	sess, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		return err
	}

	creds, err := s.backend.GenerateCredentials(ctx, sess)
	if err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}
	if err := s.applyCredentials(sess, creds); err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}

	if err := s.hooks.Rotated(sessionID); err != nil {
		s.hooks.Errored(sessionID, err)
	}
	return nil
}

// Stop removes the session's credentials from the profile and marks it
// inactive.
func (s *AwsService) Stop(ctx context.Context, sessionID string) error {
	sess, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		return err
	}

	profileName, err := s.profileName(sess)
	if err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}
	if err := s.applier.DeApply(profileName); err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}

	if err := s.hooks.Deactivated(sessionID); err != nil {
		s.hooks.Errored(sessionID, err)
	}
	return nil
}

// Delete tears the session down: stop it if active, cascade depth-first over
// every chained session rooted at it, remove the record, then dispose the
// secret material. The cascade is best-effort; a failed descendant does not
// undo work already done.
func (s *AwsService) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		return err
	}

	if sess.Status == core.StatusActive {
		if err := s.Stop(ctx, sessionID); err != nil {
			s.hooks.Errored(sessionID, err)
		}
	}

	children, err := s.repo.ListIamRoleChained(sessionID)
	if err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}
	for _, child := range children {
		svc, err := s.factory.ServiceFor(child.Type)
		if err != nil {
			s.hooks.Errored(child.ID, err)
			continue
		}
		if err := svc.Delete(ctx, child.ID); err != nil {
			s.hooks.Errored(child.ID, err)
		}
	}

	if err := s.repo.DeleteSession(sessionID); err != nil {
		s.hooks.Errored(sessionID, err)
		return nil
	}
	s.hooks.Deleted(sessionID)

	if err := s.backend.RemoveSecrets(sessionID); err != nil {
		s.hooks.Errored(sessionID, err)
	}
	return nil
}

// ChangeProfile repoints the session to another named profile, preserving its
// activity: an active session is stopped, repointed, and restarted.
func (s *AwsService) ChangeProfile(ctx context.Context, sessionID, newProfileID string) error {
	sess, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		return err
	}

	wasActive := sess.Status == core.StatusActive
	if wasActive {
		if err := s.Stop(ctx, sessionID); err != nil {
			return err
		}
	}

	sess, err = s.repo.GetSessionByID(sessionID)
	if err != nil {
		return err
	}
	sess.ProfileID = newProfileID
	if err := s.repo.UpdateSession(sess); err != nil {
		return err
	}
	s.hooks.broadcast()

	if wasActive {
		return s.Restart(ctx, sessionID)
	}
	return nil
}

// GenerateCredentials mints fresh credentials for the session without
// touching its status. Chained backends use this to obtain parent
// credentials.
func (s *AwsService) GenerateCredentials(ctx context.Context, sessionID string) (*core.Credentials, error) {
	sess, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	return s.backend.GenerateCredentials(ctx, sess)
}

// GenerateProcessCredentials emits the AWS CLI credential_process document
// from freshly generated credentials.
func (s *AwsService) GenerateProcessCredentials(ctx context.Context, sessionID string) (*ProcessCredentials, error) {
	sess, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Type.IsAwsFamily() {
		return nil, fmt.Errorf("unsupported session type: %s", sess.Type)
	}

	creds, err := s.backend.GenerateCredentials(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &ProcessCredentials{
		Version:         1,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Expiration:      creds.Expiration.UTC().Format(time.RFC3339),
	}, nil
}

func (s *AwsService) applyCredentials(sess *core.Session, creds *core.Credentials) error {
	profileName, err := s.profileName(sess)
	if err != nil {
		return err
	}
	return s.applier.Apply(profileName, creds)
}

func (s *AwsService) profileName(sess *core.Session) (string, error) {
	profile, err := s.repo.GetProfileByID(sess.ProfileID)
	if err != nil {
		return "", fmt.Errorf("resolving profile for session %s: %w", sess.ID, err)
	}
	return profile.Name, nil
}
