// Package adapters provides thin, mockable wrappers over the cloud APIs the
// pipeline steps and reconciler depend on: Route53 DNS, AWS Certificate
// Manager, the ALB listener API, CloudFront, and WAFv2.
package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/go-acme/lego/v4/challenge/dns01"
)

// Route53DNS wraps a Route53 client scoped to one hosted zone. The pipeline's
// DNS steps use it directly, and via Present/CleanUp it implements lego's
// challenge.Provider interface for ACME DNS-01 validation.
type Route53DNS struct {
	client       *route53.Client
	hostedZoneID string
}

// NewRoute53DNS builds a Route53DNS adapter for the given hosted zone.
func NewRoute53DNS(client *route53.Client, hostedZoneID string) *Route53DNS {
	return &Route53DNS{client: client, hostedZoneID: hostedZoneID}
}

// UpsertTXT creates or replaces a TXT record. value is stored quoted, as
// Route53 requires for TXT record sets.
func (d *Route53DNS) UpsertTXT(ctx context.Context, fqdn, value string) error {
	return d.changeRecord(ctx, types.ChangeActionUpsert, fqdn, types.RRTypeTxt, fmt.Sprintf("%q", value), 60)
}

// DeleteTXT removes a TXT record. Tolerates the record already being absent.
func (d *Route53DNS) DeleteTXT(ctx context.Context, fqdn, value string) error {
	err := d.changeRecord(ctx, types.ChangeActionDelete, fqdn, types.RRTypeTxt, fmt.Sprintf("%q", value), 60)
	if isNotFoundRoute53(err) {
		return nil
	}
	return err
}

// UpsertAlias points fqdn at an AWS-owned alias target (e.g. an ALB or
// CloudFront distribution domain name) within the adapter's hosted zone.
func (d *Route53DNS) UpsertAlias(ctx context.Context, fqdn, aliasTarget, aliasHostedZoneID string) error {
	_, err := d.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(d.hostedZoneID),
		ChangeBatch:  aliasChangeBatch(types.ChangeActionUpsert, fqdn, aliasTarget, aliasHostedZoneID),
	})
	return err
}

// DeleteAlias removes an alias record set. Tolerates the record being absent.
func (d *Route53DNS) DeleteAlias(ctx context.Context, fqdn, aliasTarget, aliasHostedZoneID string) error {
	_, err := d.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(d.hostedZoneID),
		ChangeBatch:  aliasChangeBatch(types.ChangeActionDelete, fqdn, aliasTarget, aliasHostedZoneID),
	})
	if isNotFoundRoute53(err) {
		return nil
	}
	return err
}

func aliasChangeBatch(action types.ChangeAction, fqdn, aliasTarget, aliasHostedZoneID string) *types.ChangeBatch {
	name := fqdn
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	return &types.ChangeBatch{
		Changes: []types.Change{{
			Action: action,
			ResourceRecordSet: &types.ResourceRecordSet{
				Name: aws.String(name),
				Type: types.RRTypeA,
				AliasTarget: &types.AliasTarget{
					DNSName:              aws.String(aliasTarget),
					HostedZoneId:         aws.String(aliasHostedZoneID),
					EvaluateTargetHealth: false,
				},
			},
		}},
	}
}

// CreateHealthCheck creates an HTTPS health check against domain and returns its id.
func (d *Route53DNS) CreateHealthCheck(ctx context.Context, domain string) (string, error) {
	out, err := d.client.CreateHealthCheck(ctx, &route53.CreateHealthCheckInput{
		CallerReference: aws.String(fmt.Sprintf("%s-%d", domain, time.Now().UnixNano())),
		HealthCheckConfig: &types.HealthCheckConfig{
			Type:                     types.HealthCheckTypeHttps,
			FullyQualifiedDomainName: aws.String(domain),
			Port:                     aws.Int32(443),
			ResourcePath:             aws.String("/"),
		},
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.HealthCheck.Id), nil
}

// DeleteHealthCheck removes a health check. Tolerates it being absent already.
func (d *Route53DNS) DeleteHealthCheck(ctx context.Context, id string) error {
	_, err := d.client.DeleteHealthCheck(ctx, &route53.DeleteHealthCheckInput{HealthCheckId: aws.String(id)})
	if isNotFoundRoute53(err) {
		return nil
	}
	return err
}

func (d *Route53DNS) changeRecord(ctx context.Context, action types.ChangeAction, fqdn string, rrType types.RRType, value string, ttl int64) error {
	_, err := d.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(d.hostedZoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{
				Action: action,
				ResourceRecordSet: &types.ResourceRecordSet{
					Name:            aws.String(fqdn),
					Type:            rrType,
					TTL:             aws.Int64(ttl),
					ResourceRecords: []types.ResourceRecord{{Value: aws.String(value)}},
				},
			}},
		},
	})
	return err
}

// Present implements lego's challenge.Provider, satisfying a DNS-01 challenge
// by writing the TXT record lego expects and letting Route53 propagate it.
func (d *Route53DNS) Present(domain, token, keyAuth string) error {
	fqdn, value := dns01.GetRecord(domain, keyAuth)
	return d.UpsertTXT(context.Background(), fqdn, value)
}

// CleanUp implements lego's challenge.Provider, removing the TXT record left
// by Present once the authority has validated the challenge.
func (d *Route53DNS) CleanUp(domain, token, keyAuth string) error {
	fqdn, value := dns01.GetRecord(domain, keyAuth)
	return d.DeleteTXT(context.Background(), fqdn, value)
}

func isNotFoundRoute53(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchHealthCheck") ||
		(strings.Contains(msg, "InvalidChangeBatch") && strings.Contains(msg, "not found"))
}
