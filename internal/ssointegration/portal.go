package ssointegration

import (
	"context"
	"fmt"
	"time"

	"github.com/cirrus-hq/cirrus/internal/awsconn"
)

// AwsPortal is the PortalGateway implementation over the real Identity
// Center APIs.
type AwsPortal struct {
	clients *awsconn.ClientFactory
}

// NewAwsPortal creates the portal gateway over the AWS client factory.
func NewAwsPortal(clients *awsconn.ClientFactory) *AwsPortal {
	return &AwsPortal{clients: clients}
}

var _ PortalGateway = (*AwsPortal)(nil)

func (p *AwsPortal) Login(ctx context.Context, portalURL, region string, openBrowser bool) (string, time.Time, error) {
	result, err := p.clients.DeviceLogin(ctx, portalURL, region, openBrowser)
	if err != nil {
		return "", time.Time{}, err
	}
	return result.AccessToken, result.Expiration, nil
}

func (p *AwsPortal) ListRoleSessions(ctx context.Context, region, accessToken string) ([]RoleSessionInfo, error) {
	roles, err := p.clients.ListAccountRoles(ctx, region, accessToken)
	if err != nil {
		return nil, err
	}

	out := make([]RoleSessionInfo, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleSessionInfo{
			SessionName: r.AccountName,
			RoleARN:     fmt.Sprintf("arn:aws:iam::%s:role/%s", r.AccountID, r.RoleName),
			Email:       r.AccountEmail,
		})
	}
	return out, nil
}

func (p *AwsPortal) Logout(ctx context.Context, region, accessToken string) error {
	return p.clients.SsoLogout(ctx, region, accessToken)
}
