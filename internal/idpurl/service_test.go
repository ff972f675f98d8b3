package idpurl

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/db"
	"github.com/cirrus-hq/cirrus/internal/notify"
	"github.com/cirrus-hq/cirrus/internal/repository"
	"github.com/cirrus-hq/cirrus/internal/session"
)

type fakeBackend struct{}

func (fakeBackend) GenerateCredentials(ctx context.Context, sess *core.Session) (*core.Credentials, error) {
	return &core.Credentials{AccessKeyID: "ASIAFAKE", Expiration: time.Now().Add(time.Hour)}, nil
}

func (fakeBackend) RemoveSecrets(sessionID string) error { return nil }

type fakeApplier struct{}

func (fakeApplier) Apply(profileName string, creds *core.Credentials) error { return nil }
func (fakeApplier) DeApply(profileName string) error                        { return nil }

type fixture struct {
	store     *repository.Store
	svc       *Service
	profileID string
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
	profileID, err := store.GetDefaultProfileID()
	if err != nil {
		t.Fatalf("default profile: %v", err)
	}

	hooks := session.NewHooks(store, notify.NewHub(), nil, zerolog.Nop())
	factory := session.NewFactory()
	awsSvc := session.NewAwsService(store, hooks, factory, fakeBackend{}, fakeApplier{}, session.NewProfileLocks(), zerolog.Nop())
	factory.Register(core.TypeAwsIamRoleFederated, awsSvc)
	factory.Register(core.TypeAwsIamRoleChained, awsSvc)

	return &fixture{
		store:     store,
		svc:       NewService(store, factory, nil, zerolog.Nop()),
		profileID: profileID,
	}
}

func (f *fixture) addSession(t *testing.T, name string, typ core.SessionType, idpURLID, parentID string) core.Session {
	t.Helper()
	sess := core.Session{
		ID:              uuid.New().String(),
		Name:            name,
		Type:            typ,
		Status:          core.StatusInactive,
		Region:          "us-east-1",
		ProfileID:       f.profileID,
		IdpURLID:        idpURLID,
		ParentSessionID: parentID,
	}
	if err := f.store.AddSession(&sess); err != nil {
		t.Fatalf("adding session %s: %v", name, err)
	}
	return sess
}

func TestValidate(t *testing.T) {
	f := setup(t)
	if _, err := f.svc.Create("https://idp.example.com/saml"); err != nil {
		t.Fatalf("creating idp url: %v", err)
	}

	tests := []struct {
		url     string
		wantErr string
	}{
		{"", "Empty IdP URL"},
		{"   ", "Empty IdP URL"},
		{"ftp://x", "IdP URL is not a valid URL"},
		{"idp.example.com", "IdP URL is not a valid URL"},
		{"https://idp.example.com/saml", "IdP URL already exists"},
		{" https://idp.example.com/saml ", "IdP URL already exists"},
		{"https://new.example", ""},
		{"http://plain.example", ""},
	}
	for _, tt := range tests {
		err := f.svc.Validate(tt.url)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tt.url, err)
			}
			continue
		}
		if err == nil || err.Error() != tt.wantErr {
			t.Errorf("Validate(%q) = %v, want %q", tt.url, err, tt.wantErr)
		}
	}
}

func TestMergeIsGetOrCreate(t *testing.T) {
	f := setup(t)

	first, err := f.svc.Merge("https://idp.example.com/saml")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	second, err := f.svc.Merge("  https://idp.example.com/saml  ")
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("merge created a duplicate: %s vs %s", first.ID, second.ID)
	}

	urls, _ := f.store.GetIdpUrls()
	if len(urls) != 1 {
		t.Errorf("idp urls = %d, want 1", len(urls))
	}
}

func TestDependantSessionsFlattensParentFirst(t *testing.T) {
	f := setup(t)
	u, err := f.svc.Create("https://idp.example.com/saml")
	if err != nil {
		t.Fatalf("creating idp url: %v", err)
	}

	fed := f.addSession(t, "fed", core.TypeAwsIamRoleFederated, u.ID, "")
	child := f.addSession(t, "child", core.TypeAwsIamRoleChained, "", fed.ID)
	grandchild := f.addSession(t, "grandchild", core.TypeAwsIamRoleChained, "", child.ID)
	f.addSession(t, "unrelated", core.TypeAwsIamRoleFederated, "", "")

	deps, err := f.svc.DependantSessions(u.ID, true)
	if err != nil {
		t.Fatalf("dependants: %v", err)
	}
	if len(deps) != 3 {
		t.Fatalf("dependants = %d, want 3", len(deps))
	}

	pos := map[string]int{}
	for i, d := range deps {
		pos[d.ID] = i
	}
	if !(pos[fed.ID] < pos[child.ID] && pos[child.ID] < pos[grandchild.ID]) {
		t.Errorf("expected parent before children, got order %v", deps)
	}

	direct, err := f.svc.DependantSessions(u.ID, false)
	if err != nil {
		t.Fatalf("direct dependants: %v", err)
	}
	if len(direct) != 1 || direct[0].ID != fed.ID {
		t.Errorf("direct dependants = %+v, want just the federated session", direct)
	}
}

func TestDeleteCascadesBeforeRemovingUrl(t *testing.T) {
	f := setup(t)
	u, err := f.svc.Create("https://idp.example.com/saml")
	if err != nil {
		t.Fatalf("creating idp url: %v", err)
	}

	fed := f.addSession(t, "fed", core.TypeAwsIamRoleFederated, u.ID, "")
	child := f.addSession(t, "child", core.TypeAwsIamRoleChained, "", fed.ID)
	survivor := f.addSession(t, "survivor", core.TypeAwsIamRoleFederated, "", "")

	if err := f.svc.Delete(context.Background(), u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, id := range []string{fed.ID, child.ID} {
		if _, err := f.store.GetSessionByID(id); err == nil {
			t.Errorf("session %s survived the cascade", id)
		}
	}
	if _, err := f.store.GetSessionByID(survivor.ID); err != nil {
		t.Errorf("unrelated session deleted: %v", err)
	}
	if _, err := f.store.GetIdpUrlByID(u.ID); err == nil {
		t.Error("idp url record survived the delete")
	}
}
