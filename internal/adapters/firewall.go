package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/wafv2"
	"github.com/aws/aws-sdk-go-v2/service/wafv2/types"
)

// WebACL wraps a WAFv2 client for dedicated per-instance web-ACLs. Delete is
// the one call the component design calls out as needing its own retry
// budget: WAFv2 returns an optimistic-lock exception while a rule group
// update from a concurrent caller is still propagating.
type WebACL struct {
	client *wafv2.Client
}

// NewWebACL builds a WebACL adapter.
func NewWebACL(client *wafv2.Client) *WebACL {
	return &WebACL{client: client}
}

// Create provisions a dedicated web-ACL with the given rate-limit rule and
// returns its id and ARN.
func (w *WebACL) Create(ctx context.Context, name string, rateLimitRuleARN string) (id, arn string, err error) {
	out, err := w.client.CreateWebACL(ctx, &wafv2.CreateWebACLInput{
		Name:  aws.String(name),
		Scope: types.ScopeRegional,
		DefaultAction: &types.DefaultAction{
			Allow: &types.AllowAction{},
		},
		Rules: []types.Rule{{
			Name:     aws.String("rate-limit"),
			Priority: 0,
			Statement: &types.Statement{
				RuleGroupReferenceStatement: &types.RuleGroupReferenceStatement{ARN: aws.String(rateLimitRuleARN)},
			},
			OverrideAction: &types.OverrideAction{None: &types.NoneAction{}},
			VisibilityConfig: &types.VisibilityConfig{
				SampledRequestsEnabled:   true,
				CloudWatchMetricsEnabled: true,
				MetricName:               aws.String(name),
			},
		}},
		VisibilityConfig: &types.VisibilityConfig{
			SampledRequestsEnabled:   true,
			CloudWatchMetricsEnabled: true,
			MetricName:               aws.String(name),
		},
	})
	if err != nil {
		return "", "", err
	}
	return aws.ToString(out.Summary.Id), aws.ToString(out.Summary.ARN), nil
}

// Get fetches a web-ACL's current lock token, required by Delete.
func (w *WebACL) Get(ctx context.Context, id, name string) (lockToken string, err error) {
	out, err := w.client.GetWebACL(ctx, &wafv2.GetWebACLInput{
		Id:    aws.String(id),
		Name:  aws.String(name),
		Scope: types.ScopeRegional,
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.LockToken), nil
}

// Delete removes a web-ACL, making up to maxAttempts attempts in total while
// each fails with a WAFOptimisticLockException, with a short fixed pause
// between attempts, per the bounded firewall-delete retry budget in the
// concurrency model.
// Tolerates the web-ACL already being absent.
func (w *WebACL) Delete(ctx context.Context, id, name string, maxAttempts int) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lockToken, err := w.Get(ctx, id, name)
		if isWAFNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}

		_, err = w.client.DeleteWebACL(ctx, &wafv2.DeleteWebACLInput{
			Id:        aws.String(id),
			Name:      aws.String(name),
			Scope:     types.ScopeRegional,
			LockToken: aws.String(lockToken),
		})
		if err == nil {
			return nil
		}
		if isWAFNotFound(err) {
			return nil
		}
		if !isWAFLockException(err) {
			return err
		}

		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("deleting web-ACL %s: exhausted %d attempts against lock contention: %w", name, maxAttempts, lastErr)
}

// PutLoggingConfiguration attaches a CloudWatch log group destination to a web-ACL.
func (w *WebACL) PutLoggingConfiguration(ctx context.Context, webACLARN, logGroupARN string) error {
	_, err := w.client.PutLoggingConfiguration(ctx, &wafv2.PutLoggingConfigurationInput{
		LoggingConfiguration: &types.LoggingConfiguration{
			ResourceArn:          aws.String(webACLARN),
			LogDestinationConfigs: []string{logGroupARN},
		},
	})
	return err
}

func isWAFLockException(err error) bool {
	var lockErr *types.WAFOptimisticLockException
	return errors.As(err, &lockErr)
}

func isWAFNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.WAFNonexistentItemException
	return errors.As(err, &nf)
}
