// Package profile manages named profiles and the stop-mutate-restart cascades
// that keep sessions consistent when a profile in use is renamed or deleted.
// Profiles are never a reason to destroy a session: deletion repoints
// dependents to the default profile.
package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cirrus-hq/cirrus/internal/audit"
	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/notify"
	"github.com/cirrus-hq/cirrus/internal/repository"
	"github.com/cirrus-hq/cirrus/internal/session"
)

// ChangeResult reports what a profile reassignment did.
type ChangeResult string

const (
	// ChangeApplied means the session was repointed (and restarted when it
	// had been active).
	ChangeApplied ChangeResult = "changed"
	// ChangeSkipped means the session's type does not support named
	// profiles; nothing was mutated.
	ChangeSkipped ChangeResult = "skipped"
)

// Service manages the named profile list.
type Service struct {
	repo    repository.Repository
	factory *session.Factory
	hub     *notify.Hub
	audit   *audit.Logger
	logger  zerolog.Logger
}

// NewService wires the profile service. The audit logger may be nil.
func NewService(repo repository.Repository, factory *session.Factory, hub *notify.Hub, auditLog *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{repo: repo, factory: factory, hub: hub, audit: auditLog, logger: logger}
}

// ValidateName checks a prospective profile name. The input is trimmed before
// validation; nil means the name is usable.
func (s *Service) ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return core.NewSessionError(core.SeverityWarning, "Empty profile name")
	}
	if trimmed == core.DefaultProfileName {
		return core.NewSessionError(core.SeverityWarning, "Profile name is reserved")
	}

	profiles, err := s.repo.GetProfiles()
	if err != nil {
		return err
	}
	for _, p := range profiles {
		if p.Name == trimmed {
			return core.NewSessionError(core.SeverityWarning, "Profile name already exists")
		}
	}
	return nil
}

// Create validates and persists a new named profile.
func (s *Service) Create(name string) (*core.NamedProfile, error) {
	if err := s.ValidateName(name); err != nil {
		return nil, err
	}

	p := &core.NamedProfile{ID: uuid.New().String(), Name: strings.TrimSpace(name)}
	if err := s.repo.AddProfile(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Rename changes a profile's name. Every active session referencing the
// profile is stopped first and restarted afterwards, so from the caller's
// perspective "active before" implies "active after".
func (s *Service) Rename(ctx context.Context, id, newName string) error {
	if err := s.ValidateName(newName); err != nil {
		return err
	}
	profile, err := s.repo.GetProfileByID(id)
	if err != nil {
		return err
	}

	activeSessions, err := s.sessionsForProfile(id, true)
	if err != nil {
		return err
	}

	for _, sess := range activeSessions {
		if err := s.invoke(ctx, sess, session.Service.Stop); err != nil {
			return err
		}
	}

	oldName := profile.Name
	profile.Name = strings.TrimSpace(newName)
	if err := s.repo.UpdateProfile(profile); err != nil {
		return err
	}

	for _, sess := range activeSessions {
		if err := s.restart(ctx, sess); err != nil {
			return err
		}
	}

	s.record(audit.EventProfileRenamed, map[string]string{"id": id, "from": oldName, "to": profile.Name})
	return nil
}

// Delete removes a profile, repointing every session referencing it to the
// default profile. Active sessions are stopped, repointed, and restarted;
// sessions are never deleted on this path. The default profile cannot be
// deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	profile, err := s.repo.GetProfileByID(id)
	if err != nil {
		return err
	}
	if profile.Name == core.DefaultProfileName {
		return core.NewSessionError(core.SeverityWarning, "cannot delete the default profile")
	}

	defaultID, err := s.repo.GetDefaultProfileID()
	if err != nil {
		return err
	}

	dependents, err := s.sessionsForProfile(id, false)
	if err != nil {
		return err
	}
	for _, sess := range dependents {
		wasActive := sess.Status == core.StatusActive
		if wasActive {
			if err := s.invoke(ctx, sess, session.Service.Stop); err != nil {
				return err
			}
		}

		current, err := s.repo.GetSessionByID(sess.ID)
		if err != nil {
			return err
		}
		current.ProfileID = defaultID
		if err := s.repo.UpdateSession(current); err != nil {
			return err
		}
		s.broadcast()

		if wasActive {
			if err := s.restart(ctx, sess); err != nil {
				return err
			}
		}
	}

	if err := s.repo.RemoveProfile(id); err != nil {
		return err
	}

	s.record(audit.EventProfileDeleted, map[string]string{"id": id, "name": profile.Name})
	return nil
}

// ChangeProfile repoints a single session to another profile. Session types
// without named profiles are reported as a skip, not an error.
func (s *Service) ChangeProfile(ctx context.Context, sessionID, newProfileID string) (ChangeResult, error) {
	sess, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		return "", err
	}
	if _, err := s.repo.GetProfileByID(newProfileID); err != nil {
		return "", err
	}

	svc, err := s.factory.ServiceFor(sess.Type)
	if err != nil {
		return "", err
	}
	assignable, ok := svc.(session.ProfileAssignable)
	if !ok {
		return ChangeSkipped, nil
	}

	if err := assignable.ChangeProfile(ctx, sessionID, newProfileID); err != nil {
		return "", err
	}
	return ChangeApplied, nil
}

// sessionsForProfile returns the sessions referencing a profile, optionally
// restricted to active ones.
func (s *Service) sessionsForProfile(profileID string, activeOnly bool) ([]core.Session, error) {
	sessions, err := s.repo.GetSessions()
	if err != nil {
		return nil, err
	}

	var out []core.Session
	for _, sess := range sessions {
		if sess.ProfileID != profileID {
			continue
		}
		if activeOnly && sess.Status != core.StatusActive {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// restart re-activates a session this service stopped during a cascade,
// bypassing the pending-session precondition where the type supports it.
func (s *Service) restart(ctx context.Context, sess core.Session) error {
	svc, err := s.factory.ServiceFor(sess.Type)
	if err != nil {
		return err
	}
	if r, ok := svc.(session.Restarter); ok {
		if err := r.Restart(ctx, sess.ID); err != nil {
			return fmt.Errorf("session %s: %w", sess.ID, err)
		}
		return nil
	}
	return s.invoke(ctx, sess, session.Service.Start)
}

func (s *Service) invoke(ctx context.Context, sess core.Session, op func(session.Service, context.Context, string) error) error {
	svc, err := s.factory.ServiceFor(sess.Type)
	if err != nil {
		return err
	}
	if err := op(svc, ctx, sess.ID); err != nil {
		return fmt.Errorf("session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Service) broadcast() {
	sessions, err := s.repo.GetSessions()
	if err != nil {
		s.logger.Debug().Err(err).Msg("reading sessions for broadcast")
		return
	}
	s.hub.SetSessions(sessions)
}

func (s *Service) record(event audit.EventType, detail any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(event, "", detail); err != nil {
		s.logger.Debug().Err(err).Str("event", string(event)).Msg("audit write failed")
	}
}
