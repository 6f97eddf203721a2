package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
)

// CDNParams describes the distribution shape a CDN or cdn-dedicated-waf
// instance needs, translated from the ServiceInstance aggregate.
type CDNParams struct {
	CallerReference      string
	Aliases              []string
	OriginHostname       string
	OriginPath           string
	OriginProtocolPolicy types.OriginProtocolPolicy
	ForwardedHeaders     []string
	ForwardCookiePolicy  types.ItemSelection
	ForwardedCookies     []string
	WebACLID             string
	ViewerCertificateARN string
}

// CloudFrontCDN wraps a CloudFront client. It is the adapter behind the
// plan-specific "apply" step for CDN and cdn-dedicated-waf instances.
type CloudFrontCDN struct {
	client *cloudfront.Client
}

// NewCloudFrontCDN builds a CloudFrontCDN adapter.
func NewCloudFrontCDN(client *cloudfront.Client) *CloudFrontCDN {
	return &CloudFrontCDN{client: client}
}

// CreateDistribution creates a new distribution and returns its id, ARN and
// AWS-assigned domain name (the alias target for the Route53 record).
func (c *CloudFrontCDN) CreateDistribution(ctx context.Context, p CDNParams) (id, arn, domainName string, err error) {
	out, err := c.client.CreateDistribution(ctx, &cloudfront.CreateDistributionInput{
		DistributionConfig: distributionConfig(p),
	})
	if err != nil {
		return "", "", "", err
	}
	return aws.ToString(out.Distribution.Id), aws.ToString(out.Distribution.ARN), aws.ToString(out.Distribution.DomainName), nil
}

// UpdateDistribution applies new config to an existing distribution,
// re-fetching the current ETag first as CloudFront's optimistic-concurrency
// protocol requires.
func (c *CloudFrontCDN) UpdateDistribution(ctx context.Context, id string, p CDNParams) error {
	current, err := c.client.GetDistribution(ctx, &cloudfront.GetDistributionInput{Id: aws.String(id)})
	if err != nil {
		return fmt.Errorf("fetching distribution %s for update: %w", id, err)
	}

	_, err = c.client.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
		Id:                 aws.String(id),
		IfMatch:            current.ETag,
		DistributionConfig: distributionConfig(p),
	})
	return err
}

// DeleteDistribution disables and deletes a distribution. Tolerates it
// already being absent.
func (c *CloudFrontCDN) DeleteDistribution(ctx context.Context, id string) error {
	current, err := c.client.GetDistribution(ctx, &cloudfront.GetDistributionInput{Id: aws.String(id)})
	if isCloudFrontNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	etag := current.ETag
	if cfg := current.Distribution.DistributionConfig; aws.ToBool(cfg.Enabled) {
		cfg.Enabled = aws.Bool(false)
		updated, err := c.client.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
			Id:                 aws.String(id),
			IfMatch:            etag,
			DistributionConfig: cfg,
		})
		if err != nil {
			return fmt.Errorf("disabling distribution %s: %w", id, err)
		}
		if err := c.WaitForDeployed(ctx, id, 20*time.Minute); err != nil {
			return err
		}
		etag = updated.ETag
	}

	_, err = c.client.DeleteDistribution(ctx, &cloudfront.DeleteDistributionInput{
		Id:      aws.String(id),
		IfMatch: etag,
	})
	if isCloudFrontNotFound(err) {
		return nil
	}
	return err
}

// WaitForDeployed blocks until the distribution reaches the Deployed state
// or the context is cancelled.
func (c *CloudFrontCDN) WaitForDeployed(ctx context.Context, id string, timeout time.Duration) error {
	waiter := cloudfront.NewDistributionDeployedWaiter(c.client)
	return waiter.Wait(ctx, &cloudfront.GetDistributionInput{Id: aws.String(id)}, timeout)
}

func distributionConfig(p CDNParams) *types.DistributionConfig {
	headers := make([]string, len(p.ForwardedHeaders))
	copy(headers, p.ForwardedHeaders)

	return &types.DistributionConfig{
		CallerReference: aws.String(p.CallerReference),
		Enabled:         aws.Bool(true),
		Comment:         aws.String("managed by dns-broker"),
		Aliases: &types.Aliases{
			Quantity: int32(len(p.Aliases)),
			Items:    p.Aliases,
		},
		WebACLId: aws.String(p.WebACLID),
		Origins: &types.Origins{
			Quantity: 1,
			Items: []types.Origin{{
				Id:         aws.String("default-origin"),
				DomainName: aws.String(p.OriginHostname),
				OriginPath: aws.String(p.OriginPath),
				CustomOriginConfig: &types.CustomOriginConfig{
					OriginProtocolPolicy:  p.OriginProtocolPolicy,
					HTTPPort:              aws.Int32(80),
					HTTPSPort:             aws.Int32(443),
					OriginSslProtocols:    &types.OriginSslProtocols{Quantity: 1, Items: []types.SslProtocol{types.SslProtocolTLSv12}},
					OriginReadTimeout:     aws.Int32(30),
					OriginKeepaliveTimeout: aws.Int32(5),
				},
			}},
		},
		DefaultCacheBehavior: &types.DefaultCacheBehavior{
			TargetOriginId:       aws.String("default-origin"),
			ViewerProtocolPolicy: types.ViewerProtocolPolicyRedirectToHttps,
			ForwardedValues: &types.ForwardedValues{
				QueryString: aws.Bool(true),
				Headers:     &types.Headers{Quantity: int32(len(headers)), Items: headers},
				Cookies: &types.CookiePreference{
					Forward:          p.ForwardCookiePolicy,
					WhitelistedNames: cookieWhitelist(p),
				},
			},
		},
		ViewerCertificate: &types.ViewerCertificate{
			ACMCertificateArn:      aws.String(p.ViewerCertificateARN),
			SSLSupportMethod:       types.SSLSupportMethodSniOnly,
			MinimumProtocolVersion: types.MinimumProtocolVersionTLSv122021,
		},
	}
}

func cookieWhitelist(p CDNParams) *types.CookieNames {
	if p.ForwardCookiePolicy != types.ItemSelectionWhitelist {
		return nil
	}
	return &types.CookieNames{Quantity: int32(len(p.ForwardedCookies)), Items: p.ForwardedCookies}
}

func isCloudFrontNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NoSuchDistribution
	if errors.As(err, &nf) {
		return true
	}
	return strings.Contains(err.Error(), "NoSuchDistribution")
}
