package ssointegration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cirrus-hq/cirrus/internal/awsconn"
	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/db"
	"github.com/cirrus-hq/cirrus/internal/notify"
	"github.com/cirrus-hq/cirrus/internal/repository"
	"github.com/cirrus-hq/cirrus/internal/session"
	"github.com/cirrus-hq/cirrus/internal/vault"
)

type fakePortal struct {
	roles       []RoleSessionInfo
	token       string
	expiration  time.Time
	loginCount  int
	logoutCount int
}

func (p *fakePortal) Login(ctx context.Context, portalURL, region string, openBrowser bool) (string, time.Time, error) {
	p.loginCount++
	return p.token, p.expiration, nil
}

func (p *fakePortal) ListRoleSessions(ctx context.Context, region, accessToken string) ([]RoleSessionInfo, error) {
	return p.roles, nil
}

func (p *fakePortal) Logout(ctx context.Context, region, accessToken string) error {
	p.logoutCount++
	return nil
}

type fixture struct {
	store  *repository.Store
	vault  *vault.Vault
	portal *fakePortal
	svc    *Service
	id     string
	now    time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	database, err := db.OpenMetadataDB(t.TempDir())
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store, err := repository.NewStore(database)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	v, err := vault.CreateMemoryOnly("test-passphrase")
	if err != nil {
		t.Fatalf("creating vault: %v", err)
	}

	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	portal := &fakePortal{
		token:      "portal-token",
		expiration: now.Add(8 * time.Hour),
		roles: []RoleSessionInfo{
			{SessionName: "prod", RoleARN: "arn:aws:iam::111111111111:role/Admin", Email: "ops@example.com"},
			{SessionName: "dev", RoleARN: "arn:aws:iam::222222222222:role/ReadOnly", Email: "ops@example.com"},
		},
	}

	clients := awsconn.NewClientFactory(zerolog.Nop())
	hooks := session.NewHooks(store, notify.NewHub(), nil, zerolog.Nop())
	factory := session.NewFactory()
	factory.Register(core.TypeAwsSsoRole, session.NewAwsService(
		store, hooks, factory, session.NewSsoRoleBackend(store, v, clients), noopApplier{},
		session.NewProfileLocks(), zerolog.Nop()))
	creator := session.NewCreator(store, hooks, session.NewIamUserBackend(v, clients, 3600))

	svc := NewService(store, v, portal, factory, creator, nil, zerolog.Nop())
	svc.Now = func() time.Time { return now }

	integration, err := svc.Create("org", "https://org.awsapps.com/start", "us-east-1", false)
	if err != nil {
		t.Fatalf("creating integration: %v", err)
	}

	return &fixture{store: store, vault: v, portal: portal, svc: svc, id: integration.ID, now: now}
}

type noopApplier struct{}

func (noopApplier) Apply(profileName string, creds *core.Credentials) error { return nil }
func (noopApplier) DeApply(profileName string) error                        { return nil }

func TestIsOnlineUsesInjectedClock(t *testing.T) {
	f := setup(t)

	integration, _ := f.store.GetAwsSsoIntegration(f.id)
	if f.svc.IsOnline(integration) {
		t.Error("new integration should be offline")
	}

	past := f.now.Add(-time.Minute)
	future := f.now.Add(time.Minute)

	integration.AccessTokenExpiration = &past
	if f.svc.IsOnline(integration) {
		t.Error("expired token should be offline")
	}
	integration.AccessTokenExpiration = &future
	if !f.svc.IsOnline(integration) {
		t.Error("unexpired token should be online")
	}
}

func TestLoginVaultsTokenAndReusesIt(t *testing.T) {
	f := setup(t)

	diff, err := f.svc.LoginAndGetSessionsDiff(context.Background(), f.id)
	if err != nil {
		t.Fatalf("login and diff: %v", err)
	}
	if len(diff.ToAdd) != 2 || len(diff.ToDelete) != 0 {
		t.Errorf("diff = +%d/-%d, want +2/-0", len(diff.ToAdd), len(diff.ToDelete))
	}
	if f.portal.loginCount != 1 {
		t.Errorf("login count = %d, want 1", f.portal.loginCount)
	}

	token, err := f.vault.Get(vault.IntegrationKey(f.id))
	if err != nil {
		t.Fatalf("reading vaulted token: %v", err)
	}
	if string(token) != "portal-token" {
		t.Errorf("vaulted token = %q", token)
	}

	integration, _ := f.store.GetAwsSsoIntegration(f.id)
	if !f.svc.IsOnline(integration) {
		t.Error("integration should be online after login")
	}

	// Second call while online reuses the vaulted token.
	if _, err := f.svc.LoginAndGetSessionsDiff(context.Background(), f.id); err != nil {
		t.Fatalf("second diff: %v", err)
	}
	if f.portal.loginCount != 1 {
		t.Errorf("login count after reuse = %d, want 1", f.portal.loginCount)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	f := setup(t)

	diff, err := f.svc.SyncSessions(context.Background(), f.id)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if len(diff.ToAdd) != 2 {
		t.Fatalf("first sync added %d, want 2", len(diff.ToAdd))
	}

	sessions, _ := f.store.GetAwsSsoIntegrationSessions(f.id)
	if len(sessions) != 2 {
		t.Fatalf("sessions after first sync = %d, want 2", len(sessions))
	}
	ids := map[string]bool{}
	for _, s := range sessions {
		ids[s.ID] = true
		if s.SsoIntegrationID != f.id {
			t.Errorf("session %s not stamped with integration id", s.ID)
		}
	}

	// No portal change: the second sync is a no-op.
	diff, err = f.svc.SyncSessions(context.Background(), f.id)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if !diff.Empty() {
		t.Errorf("second diff = +%d/-%d, want empty", len(diff.ToAdd), len(diff.ToDelete))
	}
	sessions, _ = f.store.GetAwsSsoIntegrationSessions(f.id)
	if len(sessions) != 2 {
		t.Errorf("sessions after second sync = %d, want 2", len(sessions))
	}
	for _, s := range sessions {
		if !ids[s.ID] {
			t.Errorf("session %s was recreated; ids must survive a no-op sync", s.ID)
		}
	}
}

func TestSyncDeletesVanishedRoles(t *testing.T) {
	f := setup(t)

	if _, err := f.svc.SyncSessions(context.Background(), f.id); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// The portal dropped the dev role.
	f.portal.roles = f.portal.roles[:1]

	diff, err := f.svc.SyncSessions(context.Background(), f.id)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(diff.ToAdd) != 0 || len(diff.ToDelete) != 1 {
		t.Errorf("diff = +%d/-%d, want +0/-1", len(diff.ToAdd), len(diff.ToDelete))
	}

	sessions, _ := f.store.GetAwsSsoIntegrationSessions(f.id)
	if len(sessions) != 1 || sessions[0].Name != "prod" {
		t.Errorf("sessions = %+v, want just prod", sessions)
	}
}

func TestLogoutClearsTokenAndExpiration(t *testing.T) {
	f := setup(t)

	if _, err := f.svc.LoginAndGetSessionsDiff(context.Background(), f.id); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := f.svc.Logout(context.Background(), f.id); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if f.portal.logoutCount != 1 {
		t.Errorf("logout count = %d, want 1", f.portal.logoutCount)
	}
	if f.vault.Has(vault.IntegrationKey(f.id)) {
		t.Error("token still vaulted after logout")
	}
	integration, _ := f.store.GetAwsSsoIntegration(f.id)
	if integration.AccessTokenExpiration != nil {
		t.Error("expiration not cleared after logout")
	}
}
