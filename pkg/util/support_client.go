package util

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/support"
	"go.uber.org/zap"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

// SupportAPI is the subset of the AWS Support client used to read Trusted Advisor.
type SupportAPI interface {
	DescribeTrustedAdvisorChecks(ctx context.Context, params *support.DescribeTrustedAdvisorChecksInput, optFns ...func(*support.Options)) (*support.DescribeTrustedAdvisorChecksOutput, error)
	DescribeTrustedAdvisorCheckResult(ctx context.Context, params *support.DescribeTrustedAdvisorCheckResultInput, optFns ...func(*support.Options)) (*support.DescribeTrustedAdvisorCheckResultOutput, error)
}

// SupportClient lists Trusted Advisor checks and fetches their results for
// one scoped identity. It holds no mutable state and is safe to share between
// goroutines.
type SupportClient struct {
	api      SupportAPI
	language string
	timeout  time.Duration
	log      *zap.Logger
}

// NewSupportClient creates a client from a configuration bound to a scoped identity.
func NewSupportClient(cfg aws.Config, language string, timeout time.Duration, log *zap.Logger) *SupportClient {
	return NewSupportClientWithAPI(support.NewFromConfig(cfg), language, timeout, log)
}

// NewSupportClientWithAPI wraps an existing SupportAPI implementation.
func NewSupportClientWithAPI(api SupportAPI, language string, timeout time.Duration, log *zap.Logger) *SupportClient {
	if language == "" {
		language = "en"
	}
	return &SupportClient{
		api:      api,
		language: language,
		timeout:  timeout,
		log:      log.Named("support"),
	}
}

// ListChecks returns the catalog of available checks.
// On any remote failure it returns an empty list together with a
// RemoteAPIError; callers are expected to log it and carry on.
func (c *SupportClient) ListChecks(ctx context.Context) ([]models.CheckDescriptor, error) {
	defer Track(c.log, "list_checks")()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out, err := c.api.DescribeTrustedAdvisorChecks(ctx, &support.DescribeTrustedAdvisorChecksInput{
		Language: aws.String(c.language),
	})
	if err != nil {
		status := HTTPStatus(err)
		c.log.Error("failed to get list of all Trusted Advisor checks", zap.Int("status", status), zap.Error(err))
		e := models.NewError(models.RemoteAPIError, "describe trusted advisor checks", err)
		e.Status = status
		return []models.CheckDescriptor{}, e
	}

	checks := make([]models.CheckDescriptor, 0, len(out.Checks))
	for i := range out.Checks {
		fields, err := toWireMap(out.Checks[i])
		if err != nil {
			c.log.Error("skipping unreadable check description", zap.Int("index", i), zap.Error(err))
			continue
		}
		id, _ := fields["id"].(string)
		if id == "" {
			c.log.Error("skipping check description without id", zap.Int("index", i))
			continue
		}
		delete(fields, "id")
		checks = append(checks, models.CheckDescriptor{ID: id, Fields: fields})
	}

	c.log.Info("received check catalog", zap.Int("checks", len(checks)))
	return checks, nil
}

// GetCheckResult fetches the result of one check.
//
// A remote non-success status is logged and degrades to an empty result with
// a nil error. The error return is reserved for task faults: calls that never
// got a response, and results that cannot be converted.
func (c *SupportClient) GetCheckResult(ctx context.Context, checkID string) (models.CheckResult, error) {
	defer Track(c.log, "get_check_result")()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out, err := c.api.DescribeTrustedAdvisorCheckResult(ctx, &support.DescribeTrustedAdvisorCheckResultInput{
		CheckId:  aws.String(checkID),
		Language: aws.String(c.language),
	})
	if err != nil {
		if status := HTTPStatus(err); status != 0 {
			c.log.Error("failed to get check result", zap.String("check_id", checkID), zap.Int("status", status), zap.Error(err))
			return models.EmptyResult(), nil
		}
		return nil, models.NewError(models.TaskFault, "describe trusted advisor check result "+checkID, err)
	}
	if out.Result == nil {
		c.log.Debug("check has no result", zap.String("check_id", checkID))
		return models.EmptyResult(), nil
	}

	result, err := toWireMap(out.Result)
	if err != nil {
		return nil, models.NewError(models.TaskFault, "convert check result "+checkID, err)
	}
	return models.CheckResult(result), nil
}

func (c *SupportClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// toWireMap converts an SDK output shape into a generic map keyed by the
// API's lowerCamel member names (CheckId -> checkId). Nil members are dropped.
func toWireMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %T: %w", v, err)
	}
	m, ok := lowerCamelKeys(generic).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%T is not an object", v)
	}
	return m, nil
}

func lowerCamelKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			// unset members are left out, not written as null
			if val == nil {
				continue
			}
			out[lowerFirst(k)] = lowerCamelKeys(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = lowerCamelKeys(t[i])
		}
		return t
	default:
		return v
	}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsLower(r) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
