package awsconn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sso"
	ssotypes "github.com/aws/aws-sdk-go-v2/service/sso/types"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc"
	oidctypes "github.com/aws/aws-sdk-go-v2/service/ssooidc/types"
	"github.com/pkg/browser"
)

const oidcClientName = "cirrus"

// DeviceLoginResult carries the access token minted by the OIDC device flow.
type DeviceLoginResult struct {
	AccessToken string
	Expiration  time.Time
}

// SsoAccountRole is one (account, permission-set role) pair the portal
// exposes to the signed-in identity.
type SsoAccountRole struct {
	AccountID    string
	AccountName  string
	AccountEmail string
	RoleName     string
}

// DeviceLogin runs the SSO OIDC device authorization flow against the portal
// at startURL. When openBrowser is set the verification URL is opened
// locally; either way the code is printed so the operator can complete the
// flow on another device.
func (f *ClientFactory) DeviceLogin(ctx context.Context, startURL, region string, openBrowser bool) (*DeviceLoginResult, error) {
	client := ssooidc.NewFromConfig(aws.Config{Region: region})

	registerResp, err := client.RegisterClient(ctx, &ssooidc.RegisterClientInput{
		ClientName: aws.String(oidcClientName),
		ClientType: aws.String("public"),
	})
	if err != nil {
		return nil, fmt.Errorf("registering oidc client: %w", err)
	}

	authResp, err := client.StartDeviceAuthorization(ctx, &ssooidc.StartDeviceAuthorizationInput{
		ClientId:     registerResp.ClientId,
		ClientSecret: registerResp.ClientSecret,
		StartUrl:     aws.String(startURL),
	})
	if err != nil {
		return nil, fmt.Errorf("starting device authorization: %w", err)
	}

	verificationURL := aws.ToString(authResp.VerificationUriComplete)
	if openBrowser {
		if err := browser.OpenURL(verificationURL); err != nil {
			f.logger.Debug().Err(err).Msg("opening browser failed")
		}
	}
	f.logger.Info().
		Str("verification_url", verificationURL).
		Str("user_code", aws.ToString(authResp.UserCode)).
		Msg("waiting for device authorization")

	interval := authResp.Interval
	if interval <= 0 {
		interval = 5
	}
	deadline := time.Now().Add(time.Duration(authResp.ExpiresIn) * time.Second)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(interval) * time.Second):
		}

		tokenResp, err := client.CreateToken(ctx, &ssooidc.CreateTokenInput{
			ClientId:     registerResp.ClientId,
			ClientSecret: registerResp.ClientSecret,
			DeviceCode:   authResp.DeviceCode,
			GrantType:    aws.String("urn:ietf:params:oauth:grant-type:device_code"),
		})
		if err == nil {
			return &DeviceLoginResult{
				AccessToken: aws.ToString(tokenResp.AccessToken),
				Expiration:  time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
			}, nil
		}

		var pending *oidctypes.AuthorizationPendingException
		var slowDown *oidctypes.SlowDownException
		if errors.As(err, &pending) {
			continue
		}
		if errors.As(err, &slowDown) {
			interval *= 2
			continue
		}
		return nil, fmt.Errorf("creating token: %w", err)
	}

	return nil, fmt.Errorf("device authorization timed out")
}

// ListAccountRoles enumerates every (account, role) pair the access token can
// see, paginating through accounts and their roles.
func (f *ClientFactory) ListAccountRoles(ctx context.Context, region, accessToken string) ([]SsoAccountRole, error) {
	client := sso.NewFromConfig(aws.Config{Region: region})

	accounts, err := f.listAccounts(ctx, client, accessToken)
	if err != nil {
		return nil, err
	}

	var result []SsoAccountRole
	for _, account := range accounts {
		accountID := aws.ToString(account.AccountId)

		var nextToken *string
		for {
			out, err := client.ListAccountRoles(ctx, &sso.ListAccountRolesInput{
				AccessToken: aws.String(accessToken),
				AccountId:   aws.String(accountID),
				NextToken:   nextToken,
			})
			if err != nil {
				return nil, fmt.Errorf("listing roles for account %s: %w", accountID, err)
			}

			for _, role := range out.RoleList {
				result = append(result, SsoAccountRole{
					AccountID:    accountID,
					AccountName:  aws.ToString(account.AccountName),
					AccountEmail: aws.ToString(account.EmailAddress),
					RoleName:     aws.ToString(role.RoleName),
				})
			}

			if out.NextToken == nil {
				break
			}
			nextToken = out.NextToken
		}
	}

	return result, nil
}

func (f *ClientFactory) listAccounts(ctx context.Context, client *sso.Client, accessToken string) ([]ssotypes.AccountInfo, error) {
	var accounts []ssotypes.AccountInfo
	var nextToken *string

	for {
		out, err := client.ListAccounts(ctx, &sso.ListAccountsInput{
			AccessToken: aws.String(accessToken),
			NextToken:   nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("listing sso accounts: %w", err)
		}

		accounts = append(accounts, out.AccountList...)

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	return accounts, nil
}

// GetRoleCredentials mints temporary credentials for an SSO role.
func (f *ClientFactory) GetRoleCredentials(ctx context.Context, region, accessToken, accountID, roleName string) (*SsoRoleCredentials, error) {
	client := sso.NewFromConfig(aws.Config{Region: region})

	out, err := client.GetRoleCredentials(ctx, &sso.GetRoleCredentialsInput{
		AccessToken: aws.String(accessToken),
		AccountId:   aws.String(accountID),
		RoleName:    aws.String(roleName),
	})
	if err != nil {
		return nil, fmt.Errorf("GetRoleCredentials(%s/%s): %w", accountID, roleName, err)
	}
	if out.RoleCredentials == nil {
		return nil, fmt.Errorf("GetRoleCredentials(%s/%s): empty response", accountID, roleName)
	}

	rc := out.RoleCredentials
	return &SsoRoleCredentials{
		AccessKeyID:     aws.ToString(rc.AccessKeyId),
		SecretAccessKey: aws.ToString(rc.SecretAccessKey),
		SessionToken:    aws.ToString(rc.SessionToken),
		Expiration:      time.UnixMilli(rc.Expiration).UTC(),
	}, nil
}

// SsoRoleCredentials is the output of GetRoleCredentials.
type SsoRoleCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// SsoLogout invalidates the access token at the portal.
func (f *ClientFactory) SsoLogout(ctx context.Context, region, accessToken string) error {
	client := sso.NewFromConfig(aws.Config{Region: region})

	if _, err := client.Logout(ctx, &sso.LogoutInput{AccessToken: aws.String(accessToken)}); err != nil {
		return fmt.Errorf("sso logout: %w", err)
	}
	return nil
}
