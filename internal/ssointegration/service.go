// Package ssointegration drives AWS Identity Center portal sign-in and keeps
// the local set of SSO role sessions synchronized with the roles the portal
// exposes. The portal is the source of truth: sync creates sessions for new
// portal roles and deletes sessions whose role disappeared, leaving sessions
// present on both sides untouched so their ids and statuses survive logins.
package ssointegration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cirrus-hq/cirrus/internal/audit"
	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/repository"
	"github.com/cirrus-hq/cirrus/internal/session"
	"github.com/cirrus-hq/cirrus/internal/vault"
)

// RoleSessionInfo identifies one assumable role the portal exposes. The
// triple {SessionName, RoleARN, Email} is the natural key sync diffs on.
type RoleSessionInfo struct {
	SessionName string
	RoleARN     string
	Email       string
}

// PortalGateway is the Identity Center adapter: device-flow sign-in, role
// enumeration, and token invalidation. Tests inject a fake portal.
type PortalGateway interface {
	Login(ctx context.Context, portalURL, region string, openBrowser bool) (accessToken string, expiration time.Time, err error)
	ListRoleSessions(ctx context.Context, region, accessToken string) ([]RoleSessionInfo, error)
	Logout(ctx context.Context, region, accessToken string) error
}

// SessionsDiff is the outcome of comparing the portal's role list against
// local knowledge.
type SessionsDiff struct {
	ToAdd    []RoleSessionInfo
	ToDelete []core.Session
}

// Empty reports whether the diff requires no mutation.
func (d *SessionsDiff) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToDelete) == 0
}

// Service manages SSO integrations and their role session sets.
type Service struct {
	repo    repository.Repository
	vault   *vault.Vault
	portal  PortalGateway
	factory *session.Factory
	creator *session.Creator
	audit   *audit.Logger
	logger  zerolog.Logger

	// Now is the clock behind IsOnline, overridable in tests.
	Now func() time.Time
}

// NewService wires the SSO integration service. The audit logger may be nil.
func NewService(repo repository.Repository, v *vault.Vault, portal PortalGateway, factory *session.Factory, creator *session.Creator, auditLog *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		vault:   v,
		portal:  portal,
		factory: factory,
		creator: creator,
		audit:   auditLog,
		logger:  logger,
		Now:     time.Now,
	}
}

// Create validates and persists a new integration. It starts offline; the
// first login mints its token.
func (s *Service) Create(alias, portalURL, region string, browserOpening bool) (*core.AwsSsoIntegration, error) {
	alias = strings.TrimSpace(alias)
	portalURL = strings.TrimSpace(portalURL)
	if alias == "" {
		return nil, core.NewSessionError(core.SeverityWarning, "Empty integration alias")
	}
	if !strings.HasPrefix(portalURL, "http://") && !strings.HasPrefix(portalURL, "https://") {
		return nil, core.NewSessionError(core.SeverityWarning, "Portal URL is not a valid URL")
	}

	integration := &core.AwsSsoIntegration{
		ID:             uuid.New().String(),
		Alias:          alias,
		PortalURL:      portalURL,
		Region:         region,
		BrowserOpening: browserOpening,
	}
	if err := s.repo.AddAwsSsoIntegration(integration); err != nil {
		return nil, err
	}
	return integration, nil
}

// IsOnline reports whether the integration holds an unexpired access token.
func (s *Service) IsOnline(integration *core.AwsSsoIntegration) bool {
	return integration.AccessTokenExpiration != nil &&
		integration.AccessTokenExpiration.After(s.Now())
}

// LoginAndGetSessionsDiff signs in to the portal when the integration is
// offline (reusing the vaulted token otherwise), fetches the current role
// list, and diffs it against the locally known role sessions by
// {sessionName, roleArn, email}.
func (s *Service) LoginAndGetSessionsDiff(ctx context.Context, integrationID string) (*SessionsDiff, error) {
	integration, err := s.repo.GetAwsSsoIntegration(integrationID)
	if err != nil {
		return nil, err
	}

	token, err := s.accessToken(ctx, integration)
	if err != nil {
		return nil, err
	}

	portalRoles, err := s.portal.ListRoleSessions(ctx, integration.Region, token)
	if err != nil {
		return nil, fmt.Errorf("listing portal roles: %w", err)
	}

	local, err := s.repo.GetAwsSsoIntegrationSessions(integrationID)
	if err != nil {
		return nil, err
	}

	return diffSessions(portalRoles, local), nil
}

// SyncSessions computes the diff and applies it: new portal roles become SSO
// role sessions, vanished ones are deleted through their service. A second
// call with no portal change yields an empty diff and performs no mutation.
func (s *Service) SyncSessions(ctx context.Context, integrationID string) (*SessionsDiff, error) {
	integration, err := s.repo.GetAwsSsoIntegration(integrationID)
	if err != nil {
		return nil, err
	}

	diff, err := s.LoginAndGetSessionsDiff(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	for _, role := range diff.ToAdd {
		_, err := s.creator.CreateSsoRole(session.SsoRoleParams{
			Name:          role.SessionName,
			Region:        integration.Region,
			RoleARN:       role.RoleARN,
			Email:         role.Email,
			IntegrationID: integrationID,
		})
		if err != nil {
			return nil, fmt.Errorf("creating session %q: %w", role.SessionName, err)
		}
	}

	for _, sess := range diff.ToDelete {
		svc, err := s.factory.ServiceFor(sess.Type)
		if err != nil {
			return nil, err
		}
		if err := svc.Delete(ctx, sess.ID); err != nil {
			return nil, fmt.Errorf("deleting session %s: %w", sess.ID, err)
		}
	}

	if !diff.Empty() {
		s.record(audit.EventIntegrationSynced, map[string]int{
			"added":   len(diff.ToAdd),
			"deleted": len(diff.ToDelete),
		})
	}
	return diff, nil
}

// Logout invalidates the portal token and marks the integration offline. The
// portal call is best-effort; local state is cleared regardless.
func (s *Service) Logout(ctx context.Context, integrationID string) error {
	integration, err := s.repo.GetAwsSsoIntegration(integrationID)
	if err != nil {
		return err
	}

	key := vault.IntegrationKey(integrationID)
	if token, err := s.vault.Get(key); err == nil {
		if err := s.portal.Logout(ctx, integration.Region, string(token)); err != nil {
			s.logger.Warn().Err(err).Str("integration_id", integrationID).Msg("portal logout failed")
		}
	}

	if err := s.vault.Delete(key); err != nil {
		return err
	}
	if err := s.vault.Save(); err != nil {
		return err
	}
	if err := s.repo.SetAccessTokenExpiration(integrationID, nil); err != nil {
		return err
	}

	s.record(audit.EventIntegrationLogout, map[string]string{"id": integrationID, "alias": integration.Alias})
	return nil
}

// Delete logs the integration out, cascades delete over every session it
// owns, and removes the record.
func (s *Service) Delete(ctx context.Context, integrationID string) error {
	if err := s.Logout(ctx, integrationID); err != nil {
		return err
	}

	sessions, err := s.repo.GetAwsSsoIntegrationSessions(integrationID)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		svc, err := s.factory.ServiceFor(sess.Type)
		if err != nil {
			s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("cascade delete skipped")
			continue
		}
		if err := svc.Delete(ctx, sess.ID); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("cascade delete failed")
		}
	}

	return s.repo.RemoveAwsSsoIntegration(integrationID)
}

// accessToken reuses the vaulted token while the integration is online and
// runs the device flow otherwise.
func (s *Service) accessToken(ctx context.Context, integration *core.AwsSsoIntegration) (string, error) {
	if s.IsOnline(integration) {
		token, err := s.vault.Get(vault.IntegrationKey(integration.ID))
		if err == nil {
			return string(token), nil
		}
		// Token expiration says online but the vault lost the token; fall
		// through to a fresh login.
		s.logger.Debug().Err(err).Str("integration_id", integration.ID).Msg("vaulted token missing")
	}

	token, expiration, err := s.portal.Login(ctx, integration.PortalURL, integration.Region, integration.BrowserOpening)
	if err != nil {
		return "", fmt.Errorf("portal login: %w", err)
	}

	if err := s.vault.Put(vault.IntegrationKey(integration.ID), []byte(token)); err != nil {
		return "", err
	}
	if err := s.vault.Save(); err != nil {
		return "", err
	}
	if err := s.repo.SetAccessTokenExpiration(integration.ID, &expiration); err != nil {
		return "", err
	}

	s.record(audit.EventIntegrationLogin, map[string]string{"id": integration.ID, "alias": integration.Alias})
	return token, nil
}

type roleSessionKey struct {
	name    string
	roleARN string
	email   string
}

func diffSessions(portalRoles []RoleSessionInfo, local []core.Session) *SessionsDiff {
	portalKeys := make(map[roleSessionKey]bool, len(portalRoles))
	for _, r := range portalRoles {
		portalKeys[roleSessionKey{r.SessionName, r.RoleARN, r.Email}] = true
	}
	localKeys := make(map[roleSessionKey]bool, len(local))
	for _, sess := range local {
		localKeys[roleSessionKey{sess.Name, sess.RoleARN, sess.Email}] = true
	}

	diff := &SessionsDiff{}
	for _, r := range portalRoles {
		if !localKeys[roleSessionKey{r.SessionName, r.RoleARN, r.Email}] {
			diff.ToAdd = append(diff.ToAdd, r)
		}
	}
	for _, sess := range local {
		if !portalKeys[roleSessionKey{sess.Name, sess.RoleARN, sess.Email}] {
			diff.ToDelete = append(diff.ToDelete, sess)
		}
	}
	return diff
}

func (s *Service) record(event audit.EventType, detail any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(event, "", detail); err != nil {
		s.logger.Debug().Err(err).Str("event", string(event)).Msg("audit write failed")
	}
}
