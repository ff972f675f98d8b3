// Package idpurl manages identity-provider sign-in URLs and the delete
// cascade over the federated sessions built on them and the chained sessions
// built on those. Unlike named profiles an IdP URL has no default to fall
// back to, so deletion cascades instead of repointing.
package idpurl

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cirrus-hq/cirrus/internal/audit"
	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/repository"
	"github.com/cirrus-hq/cirrus/internal/session"
)

// Service manages the IdP URL list.
type Service struct {
	repo    repository.Repository
	factory *session.Factory
	audit   *audit.Logger
	logger  zerolog.Logger
}

// NewService wires the IdP URL service. The audit logger may be nil.
func NewService(repo repository.Repository, factory *session.Factory, auditLog *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{repo: repo, factory: factory, audit: auditLog, logger: logger}
}

// Validate checks a prospective IdP URL. The input is trimmed before
// validation; nil means the URL is usable.
func (s *Service) Validate(url string) error {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return core.NewSessionError(core.SeverityWarning, "Empty IdP URL")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return core.NewSessionError(core.SeverityWarning, "IdP URL is not a valid URL")
	}

	existing, err := s.repo.GetIdpUrls()
	if err != nil {
		return err
	}
	for _, u := range existing {
		if u.URL == trimmed {
			return core.NewSessionError(core.SeverityWarning, "IdP URL already exists")
		}
	}
	return nil
}

// Create validates and persists a new IdP URL.
func (s *Service) Create(url string) (*core.IdpUrl, error) {
	if err := s.Validate(url); err != nil {
		return nil, err
	}

	u := &core.IdpUrl{ID: uuid.New().String(), URL: strings.TrimSpace(url)}
	if err := s.repo.AddIdpUrl(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Edit validates and applies a new URL value to an existing record.
func (s *Service) Edit(id, url string) error {
	if err := s.Validate(url); err != nil {
		return err
	}
	u, err := s.repo.GetIdpUrlByID(id)
	if err != nil {
		return err
	}

	u.URL = strings.TrimSpace(url)
	return s.repo.UpdateIdpUrl(u)
}

// Merge returns the IdP URL with the given value, creating it when absent.
// The URL string is the natural key, so import flows stay idempotent.
func (s *Service) Merge(url string) (*core.IdpUrl, error) {
	trimmed := strings.TrimSpace(url)

	existing, err := s.repo.GetIdpUrls()
	if err != nil {
		return nil, err
	}
	for _, u := range existing {
		if u.URL == trimmed {
			return &u, nil
		}
	}
	return s.Create(trimmed)
}

// DependantSessions returns every federated session referencing the IdP URL
// and, when includingChained is set, every chained session transitively
// rooted at one of those. The result is flattened with each parent before its
// descendants.
func (s *Service) DependantSessions(idpURLID string, includingChained bool) ([]core.Session, error) {
	sessions, err := s.repo.GetSessions()
	if err != nil {
		return nil, err
	}

	var out []core.Session
	for _, sess := range sessions {
		if sess.Type != core.TypeAwsIamRoleFederated || sess.IdpURLID != idpURLID {
			continue
		}
		out = append(out, sess)
		if includingChained {
			descendants, err := s.chainedDescendants(sess.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, descendants...)
		}
	}
	return out, nil
}

func (s *Service) chainedDescendants(parentID string) ([]core.Session, error) {
	children, err := s.repo.ListIamRoleChained(parentID)
	if err != nil {
		return nil, err
	}

	var out []core.Session
	for _, child := range children {
		out = append(out, child)
		grandchildren, err := s.chainedDescendants(child.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, grandchildren...)
	}
	return out, nil
}

// Delete removes an IdP URL after cascading delete to every dependant
// session, chained descendants included. Dependants go first so a crash
// mid-cascade never leaves a session referencing a removed IdP URL. The
// cascade is best-effort: a failed dependant is logged and skipped, not
// rolled back.
func (s *Service) Delete(ctx context.Context, id string) error {
	u, err := s.repo.GetIdpUrlByID(id)
	if err != nil {
		return err
	}

	dependants, err := s.DependantSessions(id, true)
	if err != nil {
		return err
	}
	for _, sess := range dependants {
		// Descendants of an already-deleted parent are gone by the time the
		// flattened list reaches them.
		if _, err := s.repo.GetSessionByID(sess.ID); err != nil {
			continue
		}

		svc, err := s.factory.ServiceFor(sess.Type)
		if err != nil {
			s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("cascade delete skipped")
			continue
		}
		if err := svc.Delete(ctx, sess.ID); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("cascade delete failed")
		}
	}

	if err := s.repo.RemoveIdpUrl(id); err != nil {
		return err
	}

	s.record(audit.EventIdpUrlDeleted, map[string]string{"id": id, "url": u.URL})
	return nil
}

func (s *Service) record(event audit.EventType, detail any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(event, "", detail); err != nil {
		s.logger.Debug().Err(err).Str("event", string(event)).Msg("audit write failed")
	}
}
