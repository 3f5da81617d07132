package util

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

// responseError builds the error the SDK returns for a non-2xx response.
func responseError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      errors.New("api error"),
		},
	}
}

func TestRoleARN(t *testing.T) {
	assert.Equal(t, "arn:aws:iam::123456789012:role/ta-admin", RoleARN("aws", "123456789012", "ta-admin"))
	assert.Equal(t, "arn:aws-cn:iam::123456789012:role/ta-admin", RoleARN("aws-cn", "123456789012", "ta-admin"))
	assert.Equal(t, "arn:aws:iam::123456789012:role/x", RoleARN("", "123456789012", "x"))
	assert.Equal(t, "", RoleARN("aws", "123456789012", ""))
}

func TestAccountFromARN(t *testing.T) {
	acct, err := AccountFromARN("arn:aws:lambda:eu-west-1:123456789012:function:collector")
	require.NoError(t, err)
	assert.Equal(t, "123456789012", acct)

	for _, bad := range []string{"", "not-an-arn", "arn:aws:s3:::bucket"} {
		_, err := AccountFromARN(bad)
		assert.Error(t, err, bad)
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 503, HTTPStatus(responseError(503)))
	assert.Equal(t, 0, HTTPStatus(errors.New("dial tcp: timeout")))
	assert.Equal(t, 0, HTTPStatus(nil))
}

func TestConfigFor(t *testing.T) {
	base := aws.Config{
		Region:      "eu-west-1",
		Credentials: credentials.NewStaticCredentialsProvider("BASEKEY", "basesecret", ""),
	}

	cfg := ConfigFor(base, models.ScopedIdentity{Region: "us-east-1"})
	assert.Equal(t, "us-east-1", cfg.Region)
	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BASEKEY", creds.AccessKeyID)

	cfg = ConfigFor(base, models.ScopedIdentity{
		AccessKeyID:     "ASIAROLE",
		SecretAccessKey: "rolesecret",
		SessionToken:    "token",
		Expires:         time.Now().Add(time.Hour),
	})
	assert.Equal(t, "eu-west-1", cfg.Region)
	creds, err = cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ASIAROLE", creds.AccessKeyID)
	assert.Equal(t, "token", creds.SessionToken)
	assert.Equal(t, "eu-west-1", base.Region)
}

type fakeSTS struct {
	callerKey string // access key of the identity the client was built with
	assumed   *[]string
	fail      map[string]error
}

func (f *fakeSTS) AssumeRole(_ context.Context, in *sts.AssumeRoleInput, _ ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	role := aws.ToString(in.RoleArn)
	*f.assumed = append(*f.assumed, f.callerKey+">"+role+"@"+aws.ToString(in.RoleSessionName))
	if err := f.fail[role]; err != nil {
		return nil, err
	}
	return &sts.AssumeRoleOutput{Credentials: &ststypes.Credentials{
		AccessKeyId:     aws.String("KEY-" + role),
		SecretAccessKey: aws.String("secret"),
		SessionToken:    aws.String("token"),
		Expiration:      aws.Time(time.Now().Add(time.Hour)),
	}}, nil
}

func (f *fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{Account: aws.String("123456789012")}, nil
}

func newTestDelegator(fail map[string]error) (*Delegator, *[]string, *int) {
	base := aws.Config{Credentials: credentials.NewStaticCredentialsProvider("EXEC", "execsecret", "")}
	d := NewDelegator(base, time.Second, zap.NewNop())
	var assumed []string
	clients := 0
	d.newSTS = func(cfg aws.Config) STSAPI {
		clients++
		creds, _ := cfg.Credentials.Retrieve(context.Background())
		return &fakeSTS{callerKey: creds.AccessKeyID, assumed: &assumed, fail: fail}
	}
	return d, &assumed, &clients
}

func TestDelegate_NoRolesUsesExecutionIdentity(t *testing.T) {
	d, assumed, clients := newTestDelegator(nil)

	id, err := d.Delegate(context.Background(), "support", "us-east-1", "", "")

	require.NoError(t, err)
	assert.Equal(t, "EXEC", id.AccessKeyID)
	assert.Equal(t, "us-east-1", id.Region)
	assert.False(t, id.Delegated())
	assert.Empty(t, *assumed)
	assert.Zero(t, *clients)
}

func TestDelegate_FirstRoleOnly(t *testing.T) {
	d, assumed, clients := newTestDelegator(nil)
	role1 := "arn:aws:iam::123456789012:role/admin"

	id, err := d.Delegate(context.Background(), "support", "us-east-1", role1, "")

	require.NoError(t, err)
	assert.Equal(t, "KEY-"+role1, id.AccessKeyID)
	assert.True(t, id.Delegated())
	assert.Equal(t, []string{"EXEC>" + role1 + "@AssumeRole1"}, *assumed)
	assert.Equal(t, 1, *clients)
}

func TestDelegate_SecondRoleOnly(t *testing.T) {
	d, assumed, clients := newTestDelegator(nil)

	id, err := d.Delegate(context.Background(), "support", "us-east-1", "", "arn:aws:iam::210987654321:role/member")

	require.NoError(t, err)
	assert.Equal(t, "KEY-arn:aws:iam::210987654321:role/member", id.AccessKeyID)
	assert.True(t, id.Delegated())
	assert.Equal(t, []string{"EXEC>arn:aws:iam::210987654321:role/member@AssumeRole2"}, *assumed)
	assert.Equal(t, 1, *clients)
}

func TestDelegate_ChainUsesFirstRoleIdentity(t *testing.T) {
	d, assumed, clients := newTestDelegator(nil)
	role1 := "arn:aws:iam::123456789012:role/admin"
	role2 := "arn:aws:iam::210987654321:role/member"

	id, err := d.Delegate(context.Background(), "support", "us-east-1", role1, role2)

	require.NoError(t, err)
	assert.Equal(t, "KEY-"+role2, id.AccessKeyID)
	assert.Equal(t, []string{
		"EXEC>" + role1 + "@AssumeRole1",
		"KEY-" + role1 + ">" + role2 + "@AssumeRole2",
	}, *assumed)
	assert.Equal(t, 2, *clients)
}

func TestDelegate_FailureAborts(t *testing.T) {
	role1 := "arn:aws:iam::123456789012:role/admin"
	d, assumed, _ := newTestDelegator(map[string]error{role1: responseError(403)})

	id, err := d.Delegate(context.Background(), "support", "us-east-1", role1, "arn:aws:iam::210987654321:role/member")

	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.DelegationFailed))
	var e *models.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 403, e.Status)
	assert.Equal(t, models.ScopedIdentity{}, id)
	assert.Len(t, *assumed, 1)
}

func TestDelegator_CurrentAccount(t *testing.T) {
	d, _, _ := newTestDelegator(nil)

	acct, err := d.CurrentAccount(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "123456789012", acct)
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	data, _ := io.ReadAll(in.Body)
	f.body = string(data)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Writer_Put(t *testing.T) {
	api := &fakeS3{}
	w := NewS3WriterWithAPI(api, "advisor-bucket", time.Second, zap.NewNop())

	err := w.Put(context.Background(), "ta/trusted_advisor_checks_1.json", []byte("{}\n"), "application/json")

	require.NoError(t, err)
	assert.Equal(t, "advisor-bucket", aws.ToString(api.input.Bucket))
	assert.Equal(t, "ta/trusted_advisor_checks_1.json", aws.ToString(api.input.Key))
	assert.Equal(t, "application/json", aws.ToString(api.input.ContentType))
	assert.Equal(t, "{}\n", api.body)
}

func TestS3Writer_PutFailure(t *testing.T) {
	api := &fakeS3{err: responseError(403)}
	w := NewS3WriterWithAPI(api, "advisor-bucket", 0, zap.NewNop())

	err := w.Put(context.Background(), "k", []byte("x"), "application/json")

	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.StoreWriteError))
	var e *models.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 403, e.Status)
}
