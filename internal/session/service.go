// Package session implements the session lifecycle state machine: status
// transitions, the start/stop/rotate/delete protocol, and the per-type
// credential backends that mint and tear down credential material.
//
// Public operations fail softly. A precondition violated before any state
// mutation returns a typed error synchronously; every failure after that
// point is routed to the error hook and the operation returns nil, so callers
// learn the outcome by re-reading session status or listening on the
// notification hub.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cirrus-hq/cirrus/internal/audit"
	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/notify"
	"github.com/cirrus-hq/cirrus/internal/repository"
)

// Service is the lifecycle contract every session type implements.
type Service interface {
	Start(ctx context.Context, sessionID string) error
	Stop(ctx context.Context, sessionID string) error
	Rotate(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
}

// ProfileAssignable marks services whose sessions write credentials under a
// named profile and can be repointed to another one. Only AWS-family services
// implement it.
type ProfileAssignable interface {
	ChangeProfile(ctx context.Context, sessionID, newProfileID string) error
}

// Restarter marks services that can re-activate a session the orchestrator
// itself stopped mid-cascade, skipping the pending-session precondition: a
// pending sibling cannot be racing for the profile file when the caller holds
// the cascade.
type Restarter interface {
	Restart(ctx context.Context, sessionID string) error
}

// ProcessCredentialsGenerator marks services that can emit the AWS CLI
// credential_process document for their sessions.
type ProcessCredentialsGenerator interface {
	GenerateProcessCredentials(ctx context.Context, sessionID string) (*ProcessCredentials, error)
}

// ProcessCredentials is the credential_process output contract. Version is
// always the literal 1.
type ProcessCredentials struct {
	Version         int    `json:"Version"`
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	SessionToken    string `json:"SessionToken"`
	Expiration      string `json:"Expiration"`
}

// Applier materializes credentials for a named profile. The credentials-file
// writer implements it; tests substitute an in-memory fake.
type Applier interface {
	Apply(profileName string, creds *core.Credentials) error
	DeApply(profileName string) error
}

// credentialsGenerator is implemented by services whose sessions can act as
// a credential source for chained role assumption.
type credentialsGenerator interface {
	GenerateCredentials(ctx context.Context, sessionID string) (*core.Credentials, error)
}

// Hooks performs the state transitions shared by every session service:
// persist the new status, broadcast the updated session list, and record the
// lifecycle event.
type Hooks struct {
	repo   repository.Repository
	hub    *notify.Hub
	audit  *audit.Logger
	logger zerolog.Logger
}

// NewHooks wires the transition hooks over the store, the notification hub,
// and the audit log. The audit logger may be nil.
func NewHooks(repo repository.Repository, hub *notify.Hub, auditLog *audit.Logger, logger zerolog.Logger) *Hooks {
	return &Hooks{repo: repo, hub: hub, audit: auditLog, logger: logger}
}

// Loading marks the session pending while credentials are generated.
func (h *Hooks) Loading(sessionID string) error {
	return h.setStatus(sessionID, core.StatusPending, nil, "", nil)
}

// Activate marks the session active and stamps its start time.
func (h *Hooks) Activate(sessionID string) error {
	now := time.Now().UTC()
	return h.setStatus(sessionID, core.StatusActive, func(s *core.Session) {
		s.StartedAt = &now
	}, audit.EventSessionStarted, nil)
}

// Rotated records a credential refresh; the session stays active.
func (h *Hooks) Rotated(sessionID string) error {
	return h.setStatus(sessionID, core.StatusActive, nil, audit.EventSessionRotated, nil)
}

// Deactivated marks the session inactive and stamps its stop time.
func (h *Hooks) Deactivated(sessionID string) error {
	now := time.Now().UTC()
	return h.setStatus(sessionID, core.StatusInactive, func(s *core.Session) {
		s.LastStoppedAt = &now
	}, audit.EventSessionStopped, nil)
}

// Errored records an operation failure. The persisted status is left
// untouched; the failure is logged, audited, and broadcast.
func (h *Hooks) Errored(sessionID string, err error) {
	h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("session operation failed")
	h.record(audit.EventSessionError, sessionID, map[string]string{"error": err.Error()})
	h.broadcast()
}

// Added broadcasts a newly created session.
func (h *Hooks) Added(sess *core.Session) {
	h.hub.AddSession(*sess)
	h.record(audit.EventSessionCreated, sess.ID, map[string]string{
		"name": sess.Name,
		"type": string(sess.Type),
	})
}

// Deleted broadcasts a session removal.
func (h *Hooks) Deleted(sessionID string) {
	h.hub.DeleteSession(sessionID)
	h.record(audit.EventSessionDeleted, sessionID, nil)
}

func (h *Hooks) setStatus(sessionID string, status core.SessionStatus, mutate func(*core.Session), event audit.EventType, detail any) error {
	sess, err := h.repo.GetSessionByID(sessionID)
	if err != nil {
		return err
	}
	sess.Status = status
	if mutate != nil {
		mutate(sess)
	}
	if err := h.repo.UpdateSession(sess); err != nil {
		return err
	}
	if event != "" {
		h.record(event, sessionID, detail)
	}
	h.broadcast()
	return nil
}

func (h *Hooks) broadcast() {
	sessions, err := h.repo.GetSessions()
	if err != nil {
		h.logger.Debug().Err(err).Msg("reading sessions for broadcast")
		return
	}
	h.hub.SetSessions(sessions)
}

func (h *Hooks) record(event audit.EventType, sessionID string, detail any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(event, sessionID, detail); err != nil {
		h.logger.Debug().Err(err).Str("event", string(event)).Msg("audit write failed")
	}
}

// ProfileLocks serializes the exclusivity check and conflicting-session stop
// per profile id, so two concurrent starts on the same profile cannot both
// pass the precondition.
type ProfileLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProfileLocks creates an empty lock table.
func NewProfileLocks() *ProfileLocks {
	return &ProfileLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for profileID and returns its release function.
func (p *ProfileLocks) Lock(profileID string) func() {
	p.mu.Lock()
	l, ok := p.locks[profileID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[profileID] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
