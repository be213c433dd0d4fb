// Package support reads cases and communications from the AWS Support API
// of every configured member account and posts replies back to it.
package support

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	awssupport "github.com/aws/aws-sdk-go-v2/service/support"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/justeat/JustSupport/internal/config"
)

// API is the subset of the AWS Support client the synchronizer uses.
type API interface {
	DescribeCases(ctx context.Context, params *awssupport.DescribeCasesInput, optFns ...func(*awssupport.Options)) (*awssupport.DescribeCasesOutput, error)
	DescribeCommunications(ctx context.Context, params *awssupport.DescribeCommunicationsInput, optFns ...func(*awssupport.Options)) (*awssupport.DescribeCommunicationsOutput, error)
	AddCommunicationToCase(ctx context.Context, params *awssupport.AddCommunicationToCaseInput, optFns ...func(*awssupport.Options)) (*awssupport.AddCommunicationToCaseOutput, error)
}

// ClientFactory returns a Support client acting inside the given account.
type ClientFactory interface {
	ForAccount(ctx context.Context, account config.Account) (API, error)
}

// STSClientFactory assumes each account's role from the central account.
// Clients are cached per role ARN; credentials refresh through the SDK cache.
type STSClientFactory struct {
	base          aws.Config
	stsClient     stscreds.AssumeRoleAPIClient
	supportRegion string

	mu      sync.Mutex
	clients map[string]API
}

// NewSTSClientFactory assumes roles using the central account's config.
func NewSTSClientFactory(base aws.Config, supportRegion string) *STSClientFactory {
	return &STSClientFactory{
		base:          base,
		stsClient:     sts.NewFromConfig(base),
		supportRegion: supportRegion,
		clients:       make(map[string]API),
	}
}

// LoadAWSConfig loads the central account's AWS config for cfg's region
// and optional shared profile.
func LoadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if profile := cfg.GetProfile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	base, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return base, nil
}

// ForAccount returns a Support client using temporary credentials for the
// account's role. The Support API is only served from one region.
func (f *STSClientFactory) ForAccount(_ context.Context, account config.Account) (API, error) {
	if account.ARN == "" {
		return nil, fmt.Errorf("account %q has no role arn", account.Name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[account.ARN]; ok {
		return c, nil
	}

	provider := stscreds.NewAssumeRoleProvider(f.stsClient, account.ARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = "support-case-sync"
	})
	cfg := f.base.Copy()
	cfg.Region = f.supportRegion
	cfg.Credentials = aws.NewCredentialsCache(provider)

	c := awssupport.NewFromConfig(cfg)
	f.clients[account.ARN] = c
	return c, nil
}

// errorCode returns the AWS error code, such as ThrottlingException or
// CaseIdNotFound, or "" for non-API errors.
func errorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}
