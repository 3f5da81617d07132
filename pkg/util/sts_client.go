package util

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

// STSAPI is the subset of the STS client used for role delegation.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Delegator derives scoped identities from the execution identity through
// zero, one or two chained role assumptions.
type Delegator struct {
	base    aws.Config
	newSTS  func(aws.Config) STSAPI
	timeout time.Duration
	log     *zap.Logger
}

// NewDelegator creates a delegator rooted at the execution identity in base.
func NewDelegator(base aws.Config, timeout time.Duration, log *zap.Logger) *Delegator {
	return &Delegator{
		base: base,
		newSTS: func(cfg aws.Config) STSAPI {
			return sts.NewFromConfig(cfg)
		},
		timeout: timeout,
		log:     log.Named("sts"),
	}
}

// Delegate returns an identity for calling service in region.
// role1 is assumed with the execution identity, role2 with role1's identity
// (or the execution identity when role1 is empty). Any failed exchange aborts
// with a DelegationFailed error and no identity.
func (d *Delegator) Delegate(ctx context.Context, service, region, role1, role2 string) (models.ScopedIdentity, error) {
	defer Track(d.log, "delegate")()
	d.log.Debug("creating identity", zap.String("service", service), zap.String("region", region))

	if role1 == "" && role2 == "" {
		d.log.Debug("not assuming another role, using execution identity")
		return d.executionIdentity(ctx, region)
	}

	client := d.newSTS(d.base)
	var id models.ScopedIdentity

	if role1 != "" {
		d.log.Debug("assuming role 1", zap.String("role", role1))
		assumed, err := d.assume(ctx, client, role1, "AssumeRole1", region)
		if err != nil {
			return models.ScopedIdentity{}, err
		}
		id = assumed
	}

	if role2 != "" {
		if id.Delegated() {
			client = d.newSTS(ConfigFor(d.base, id))
		}
		d.log.Debug("assuming role 2", zap.String("role", role2))
		assumed, err := d.assume(ctx, client, role2, "AssumeRole2", region)
		if err != nil {
			return models.ScopedIdentity{}, err
		}
		id = assumed
	}

	return id, nil
}

// CurrentAccount returns the account of the execution identity.
func (d *Delegator) CurrentAccount(ctx context.Context) (string, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	out, err := d.newSTS(d.base).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	account := aws.ToString(out.Account)
	if account == "" {
		return "", fmt.Errorf("caller identity has no account")
	}
	return account, nil
}

func (d *Delegator) executionIdentity(ctx context.Context, region string) (models.ScopedIdentity, error) {
	id := models.ScopedIdentity{Region: region}
	if d.base.Credentials == nil {
		return id, nil
	}
	creds, err := d.base.Credentials.Retrieve(ctx)
	if err != nil {
		return models.ScopedIdentity{}, models.NewError(models.DelegationFailed, "retrieve execution credentials", err)
	}
	id.AccessKeyID = creds.AccessKeyID
	id.SecretAccessKey = creds.SecretAccessKey
	id.SessionToken = creds.SessionToken
	return id, nil
}

func (d *Delegator) assume(ctx context.Context, client STSAPI, roleARN, sessionName, region string) (models.ScopedIdentity, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	out, err := client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionName),
	})
	if err != nil {
		d.log.Error("failed to assume role", zap.String("role", roleARN), zap.Error(err))
		e := models.NewError(models.DelegationFailed, "assume role "+roleARN, err)
		e.Status = HTTPStatus(err)
		return models.ScopedIdentity{}, e
	}
	if out.Credentials == nil {
		return models.ScopedIdentity{}, models.NewError(models.DelegationFailed, "assume role "+roleARN, fmt.Errorf("response has no credentials"))
	}

	expires := aws.ToTime(out.Credentials.Expiration)
	if expires.IsZero() {
		// STS default session duration
		expires = time.Now().Add(time.Hour)
	}
	return models.ScopedIdentity{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Region:          region,
		Expires:         expires,
	}, nil
}

func (d *Delegator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}
