package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/repository"
)

// Creator builds new session records. Each creation path validates its
// references, persists the record as inactive, vaults any long-lived
// material, and broadcasts the addition.
type Creator struct {
	repo       repository.Repository
	hooks      *Hooks
	iamBackend *IamUserBackend
}

// NewCreator wires the session creation paths.
func NewCreator(repo repository.Repository, hooks *Hooks, iamBackend *IamUserBackend) *Creator {
	return &Creator{repo: repo, hooks: hooks, iamBackend: iamBackend}
}

// IamUserParams describes a new IAM user session.
type IamUserParams struct {
	Name            string
	Region          string
	ProfileID       string
	AccessKeyID     string
	SecretAccessKey string
}

// CreateIamUser creates an IAM user session and vaults its key pair.
func (c *Creator) CreateIamUser(p IamUserParams) (*core.Session, error) {
	profileID, err := c.resolveProfile(p.ProfileID)
	if err != nil {
		return nil, err
	}

	sess := &core.Session{
		ID:        uuid.New().String(),
		Name:      p.Name,
		Type:      core.TypeAwsIamUser,
		Status:    core.StatusInactive,
		Region:    p.Region,
		ProfileID: profileID,
	}
	if err := c.repo.AddSession(sess); err != nil {
		return nil, err
	}
	if err := c.iamBackend.StoreKeyPair(sess.ID, p.AccessKeyID, p.SecretAccessKey); err != nil {
		// Without its key pair the session can never start; undo the record.
		_ = c.repo.DeleteSession(sess.ID)
		return nil, err
	}

	c.hooks.Added(sess)
	return sess, nil
}

// ChainedParams describes a new chained role session.
type ChainedParams struct {
	Name            string
	Region          string
	ProfileID       string
	RoleARN         string
	ParentSessionID string
	RoleSessionName string
}

// CreateChained creates a chained role session rooted at an existing parent.
func (c *Creator) CreateChained(p ChainedParams) (*core.Session, error) {
	parent, err := c.repo.GetSessionByID(p.ParentSessionID)
	if err != nil {
		return nil, fmt.Errorf("resolving parent session: %w", err)
	}
	if !parent.Type.IsAwsFamily() {
		return nil, fmt.Errorf("parent session %s (%s) cannot source credentials", parent.ID, parent.Type)
	}
	profileID, err := c.resolveProfile(p.ProfileID)
	if err != nil {
		return nil, err
	}

	sess := &core.Session{
		ID:              uuid.New().String(),
		Name:            p.Name,
		Type:            core.TypeAwsIamRoleChained,
		Status:          core.StatusInactive,
		Region:          p.Region,
		ProfileID:       profileID,
		RoleARN:         p.RoleARN,
		ParentSessionID: p.ParentSessionID,
		RoleSessionName: p.RoleSessionName,
	}
	if err := c.repo.AddSession(sess); err != nil {
		return nil, err
	}

	c.hooks.Added(sess)
	return sess, nil
}

// FederatedParams describes a new SAML-federated role session.
type FederatedParams struct {
	Name      string
	Region    string
	ProfileID string
	RoleARN   string
	IdpURLID  string
	IdpARN    string
}

// CreateFederated creates a federated role session bound to an IdP URL.
func (c *Creator) CreateFederated(p FederatedParams) (*core.Session, error) {
	if _, err := c.repo.GetIdpUrlByID(p.IdpURLID); err != nil {
		return nil, fmt.Errorf("resolving idp url: %w", err)
	}
	profileID, err := c.resolveProfile(p.ProfileID)
	if err != nil {
		return nil, err
	}

	sess := &core.Session{
		ID:        uuid.New().String(),
		Name:      p.Name,
		Type:      core.TypeAwsIamRoleFederated,
		Status:    core.StatusInactive,
		Region:    p.Region,
		ProfileID: profileID,
		RoleARN:   p.RoleARN,
		IdpURLID:  p.IdpURLID,
		IdpARN:    p.IdpARN,
	}
	if err := c.repo.AddSession(sess); err != nil {
		return nil, err
	}

	c.hooks.Added(sess)
	return sess, nil
}

// SsoRoleParams describes a new Identity Center role session. The sync path
// creates these from the portal's role list.
type SsoRoleParams struct {
	Name          string
	Region        string
	RoleARN       string
	Email         string
	IntegrationID string
}

// CreateSsoRole creates an Identity Center role session owned by an
// integration.
func (c *Creator) CreateSsoRole(p SsoRoleParams) (*core.Session, error) {
	if _, err := c.repo.GetAwsSsoIntegration(p.IntegrationID); err != nil {
		return nil, fmt.Errorf("resolving integration: %w", err)
	}
	profileID, err := c.resolveProfile("")
	if err != nil {
		return nil, err
	}

	sess := &core.Session{
		ID:               uuid.New().String(),
		Name:             p.Name,
		Type:             core.TypeAwsSsoRole,
		Status:           core.StatusInactive,
		Region:           p.Region,
		ProfileID:        profileID,
		RoleARN:          p.RoleARN,
		SsoIntegrationID: p.IntegrationID,
		Email:            p.Email,
	}
	if err := c.repo.AddSession(sess); err != nil {
		return nil, err
	}

	c.hooks.Added(sess)
	return sess, nil
}

// CreateLocalstack creates a local-emulator session.
func (c *Creator) CreateLocalstack(name, region, profileID string) (*core.Session, error) {
	resolved, err := c.resolveProfile(profileID)
	if err != nil {
		return nil, err
	}

	sess := &core.Session{
		ID:        uuid.New().String(),
		Name:      name,
		Type:      core.TypeLocalstack,
		Status:    core.StatusInactive,
		Region:    region,
		ProfileID: resolved,
	}
	if err := c.repo.AddSession(sess); err != nil {
		return nil, err
	}

	c.hooks.Added(sess)
	return sess, nil
}

// CreateAzure creates an Azure session. Azure sessions carry no named
// profile.
func (c *Creator) CreateAzure(name, region string) (*core.Session, error) {
	sess := &core.Session{
		ID:     uuid.New().String(),
		Name:   name,
		Type:   core.TypeAzure,
		Status: core.StatusInactive,
		Region: region,
	}
	if err := c.repo.AddSession(sess); err != nil {
		return nil, err
	}

	c.hooks.Added(sess)
	return sess, nil
}

// resolveProfile validates a profile reference, falling back to the default
// profile when none is given.
func (c *Creator) resolveProfile(profileID string) (string, error) {
	if profileID == "" {
		return c.repo.GetDefaultProfileID()
	}
	if _, err := c.repo.GetProfileByID(profileID); err != nil {
		return "", err
	}
	return profileID, nil
}
