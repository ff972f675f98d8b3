// Package awsconn provides the AWS SDK v2 adapter layer the session backends
// mint credentials through: STS for IAM user, chained and federated sessions,
// SSO OIDC device flow and the SSO portal API for Identity Center sessions.
package awsconn

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/cirrus-hq/cirrus/internal/core"
)

// ClientFactory creates AWS service clients bound to explicit credential
// material. No ambient configuration is ever consulted; sessions always carry
// their own keys.
type ClientFactory struct {
	logger zerolog.Logger
}

// NewClientFactory creates a new AWS client factory.
func NewClientFactory(logger zerolog.Logger) *ClientFactory {
	return &ClientFactory{logger: logger}
}

func (f *ClientFactory) awsConfig(creds *core.Credentials, region string) aws.Config {
	cfg := aws.Config{
		Region:           region,
		RetryMaxAttempts: 5,
	}
	if creds != nil {
		cfg.Credentials = credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID,
			creds.SecretAccessKey,
			creds.SessionToken,
		)
	}
	return cfg
}

func (f *ClientFactory) stsClient(creds *core.Credentials, region string) *sts.Client {
	return sts.NewFromConfig(f.awsConfig(creds, region))
}

// GetSessionToken exchanges a long-lived IAM user key pair for temporary
// session credentials.
func (f *ClientFactory) GetSessionToken(ctx context.Context, accessKey, secretKey, region string, durationSecs int32) (*core.Credentials, error) {
	f.logger.Debug().Str("service", "sts").Str("operation", "GetSessionToken").Msg("aws api call")

	client := f.stsClient(&core.Credentials{AccessKeyID: accessKey, SecretAccessKey: secretKey}, region)
	input := &sts.GetSessionTokenInput{}
	if durationSecs > 0 {
		input.DurationSeconds = &durationSecs
	}

	out, err := client.GetSessionToken(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("GetSessionToken: %w", err)
	}
	return credentialsFromSTS(out.Credentials.AccessKeyId, out.Credentials.SecretAccessKey,
		out.Credentials.SessionToken, out.Credentials.Expiration), nil
}

// AssumeRole assumes roleARN using the given source credentials.
func (f *ClientFactory) AssumeRole(ctx context.Context, creds *core.Credentials, region, roleARN, sessionName string, durationSecs int32) (*core.Credentials, error) {
	f.logger.Debug().Str("service", "sts").Str("operation", "AssumeRole").
		Str("role_arn", roleARN).Msg("aws api call")

	client := f.stsClient(creds, region)
	input := &sts.AssumeRoleInput{
		RoleArn:         &roleARN,
		RoleSessionName: &sessionName,
	}
	if durationSecs > 0 {
		input.DurationSeconds = &durationSecs
	}

	out, err := client.AssumeRole(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("AssumeRole(%s): %w", roleARN, err)
	}
	return credentialsFromSTS(out.Credentials.AccessKeyId, out.Credentials.SecretAccessKey,
		out.Credentials.SessionToken, out.Credentials.Expiration), nil
}

// AssumeRoleWithSAML exchanges a SAML assertion for role credentials. The
// assertion is obtained by the federation collaborator; STS validates it
// against the IdP registered under principalARN.
func (f *ClientFactory) AssumeRoleWithSAML(ctx context.Context, region, principalARN, roleARN, assertion string, durationSecs int32) (*core.Credentials, error) {
	f.logger.Debug().Str("service", "sts").Str("operation", "AssumeRoleWithSAML").
		Str("role_arn", roleARN).Msg("aws api call")

	client := f.stsClient(nil, region)
	input := &sts.AssumeRoleWithSAMLInput{
		PrincipalArn:  &principalARN,
		RoleArn:       &roleARN,
		SAMLAssertion: &assertion,
	}
	if durationSecs > 0 {
		input.DurationSeconds = &durationSecs
	}

	out, err := client.AssumeRoleWithSAML(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("AssumeRoleWithSAML(%s): %w", roleARN, err)
	}
	return credentialsFromSTS(out.Credentials.AccessKeyId, out.Credentials.SecretAccessKey,
		out.Credentials.SessionToken, out.Credentials.Expiration), nil
}

// GetCallerIdentity resolves the principal behind a set of credentials.
func (f *ClientFactory) GetCallerIdentity(ctx context.Context, creds *core.Credentials, region string) (arn, account, userID string, err error) {
	f.logger.Debug().Str("service", "sts").Str("operation", "GetCallerIdentity").Msg("aws api call")

	client := f.stsClient(creds, region)
	result, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", "", "", fmt.Errorf("GetCallerIdentity: %w", err)
	}
	return aws.ToString(result.Arn), aws.ToString(result.Account), aws.ToString(result.UserId), nil
}

func credentialsFromSTS(accessKeyID, secretAccessKey, sessionToken *string, expiration *time.Time) *core.Credentials {
	c := &core.Credentials{
		AccessKeyID:     aws.ToString(accessKeyID),
		SecretAccessKey: aws.ToString(secretAccessKey),
		SessionToken:    aws.ToString(sessionToken),
	}
	if expiration != nil {
		c.Expiration = *expiration
	}
	return c
}
