package util

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

// LoadAWSConfig loads the execution identity's configuration.
// maxAttempts bounds the SDK's standard retryer; 1 disables retries.
func LoadAWSConfig(ctx context.Context, region string, maxAttempts int) (aws.Config, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(maxAttempts),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// ConfigFor derives a client configuration bound to a scoped identity.
// An identity that was not delegated keeps the base credential chain.
func ConfigFor(base aws.Config, id models.ScopedIdentity) aws.Config {
	cfg := base.Copy()
	if id.Region != "" {
		cfg.Region = id.Region
	}
	if id.Delegated() {
		cfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			id.AccessKeyID, id.SecretAccessKey, id.SessionToken,
		))
	}
	return cfg
}

// RoleARN builds the ARN of a role in an account. An empty name yields "".
func RoleARN(partition, accountID, roleName string) string {
	if roleName == "" {
		return ""
	}
	if partition == "" {
		partition = "aws"
	}
	return fmt.Sprintf("arn:%s:iam::%s:role/%s", partition, accountID, roleName)
}

// AccountFromARN returns the account field of an ARN such as a Lambda
// function ARN (arn:aws:lambda:region:account:function:name).
func AccountFromARN(arn string) (string, error) {
	parts := strings.Split(arn, ":")
	if len(parts) < 5 || parts[0] != "arn" || parts[4] == "" {
		return "", fmt.Errorf("no account in ARN %q", arn)
	}
	return parts[4], nil
}

// HTTPStatus extracts the HTTP status code of a failed AWS call.
// It returns 0 when the call never produced a response.
func HTTPStatus(err error) int {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}
