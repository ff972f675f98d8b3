// Package core defines the foundational types for CIRRUS: sessions, named
// profiles, identity-provider URLs, and SSO integrations. Every other layer
// (repository, lifecycle services, CLI) is expressed in terms of these records.
package core

import (
	"strings"
	"time"
)

// SessionType tags a session with the credential source family it belongs to.
type SessionType string

const (
	TypeAwsIamUser          SessionType = "awsIamUser"
	TypeAwsIamRoleFederated SessionType = "awsIamRoleFederated"
	TypeAwsIamRoleChained   SessionType = "awsIamRoleChained"
	TypeAwsSsoRole          SessionType = "awsSsoRole"
	TypeAzure               SessionType = "azure"
	TypeLocalstack          SessionType = "localstack"
)

// AllSessionTypes lists every known session type tag. The session factory is
// total over this set.
var AllSessionTypes = []SessionType{
	TypeAwsIamUser,
	TypeAwsIamRoleFederated,
	TypeAwsIamRoleChained,
	TypeAwsSsoRole,
	TypeAzure,
	TypeLocalstack,
}

// IsAwsFamily reports whether sessions of this type materialize credentials
// under an AWS named profile.
func (t SessionType) IsAwsFamily() bool {
	switch t {
	case TypeAwsIamUser, TypeAwsIamRoleFederated, TypeAwsIamRoleChained, TypeAwsSsoRole, TypeLocalstack:
		return true
	}
	return false
}

// SessionStatus is the persisted lifecycle status of a session.
// Loading/error/rotated are transient notifications, never persisted.
type SessionStatus string

const (
	StatusInactive SessionStatus = "inactive"
	StatusPending  SessionStatus = "pending"
	StatusActive   SessionStatus = "active"
)

// Session is a configured way of obtaining temporary cloud credentials.
// The record carries the union of per-family fields; Type decides which of
// them are meaningful. ID is generated once at creation and never reused;
// Type never changes after creation.
type Session struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Type   SessionType   `json:"type"`
	Status SessionStatus `json:"status"`
	Region string        `json:"region"`

	StartedAt     *time.Time `json:"started_at,omitempty"`
	LastStoppedAt *time.Time `json:"last_stopped_at,omitempty"`

	// AWS family: the named profile credentials are written under.
	ProfileID string `json:"profile_id,omitempty"`

	// Chained roles.
	RoleARN         string `json:"role_arn,omitempty"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
	RoleSessionName string `json:"role_session_name,omitempty"`

	// Federated roles.
	IdpURLID string `json:"idp_url_id,omitempty"`
	IdpARN   string `json:"idp_arn,omitempty"`

	// SSO roles.
	SsoIntegrationID string `json:"sso_integration_id,omitempty"`
	Email            string `json:"email,omitempty"`
}

// NamedProfile labels the AWS credentials-file profile one or more sessions
// write their materialized credentials under.
type NamedProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DefaultProfileName is the reserved name of the protected default profile.
// The default profile always exists and is never renamed or deleted.
const DefaultProfileName = "default"

// IdpUrl is the SAML identity-provider sign-in URL used by federated role
// sessions. URL values are unique, non-empty and http(s).
type IdpUrl struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// AwsSsoIntegration is a configured AWS Identity Center portal connection.
// It owns one AwsSsoRole session per (permission-set role x account) the
// portal exposes to the signed-in identity.
type AwsSsoIntegration struct {
	ID                    string     `json:"id"`
	Alias                 string     `json:"alias"`
	PortalURL             string     `json:"portal_url"`
	Region                string     `json:"region"`
	BrowserOpening        bool       `json:"browser_opening"`
	AccessTokenExpiration *time.Time `json:"access_token_expiration,omitempty"`
}

// Credentials is the short-lived credential material produced by a session
// backend and consumed by the credential applier.
type Credentials struct {
	AccessKeyID     string    `json:"access_key_id"`
	SecretAccessKey string    `json:"secret_access_key"`
	SessionToken    string    `json:"session_token"`
	Expiration      time.Time `json:"expiration"`
}

// AccountIDFromARN extracts the account id from an IAM role ARN
// (arn:aws:iam::ACCOUNT:role/Name). Empty when the ARN is malformed.
func AccountIDFromARN(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) < 5 {
		return ""
	}
	return parts[4]
}

// RoleNameFromARN extracts the role name from an IAM role ARN.
func RoleNameFromARN(arn string) string {
	idx := strings.LastIndex(arn, "/")
	if idx < 0 || idx == len(arn)-1 {
		return ""
	}
	return arn[idx+1:]
}
