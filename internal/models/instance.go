// Package models contains the durable data model for the DNS broker:
// service instances, certificates, and operations.
package models

import "time"

// InstanceType discriminates the tagged variants of ServiceInstance. The
// source system models this as single-table inheritance; here it is a kind
// field on one record type plus variant-specific fields that are only
// meaningful for the matching kind, which keeps the single-table storage
// layout while giving callers an explicit tag to switch on.
type InstanceType string

const (
	InstanceTypeALB            InstanceType = "alb"
	InstanceTypeCDN            InstanceType = "cdn"
	InstanceTypeCDNDedicatedWAF InstanceType = "cdn-dedicated-waf"
	InstanceTypeMigration       InstanceType = "migration"
)

// CookiePolicy is the CDN forward-cookie policy.
type CookiePolicy string

const (
	CookiePolicyNone      CookiePolicy = "none"
	CookiePolicyAll       CookiePolicy = "all"
	CookiePolicyWhitelist CookiePolicy = "whitelist"
)

// OriginProtocolPolicy controls whether the CDN speaks plaintext or TLS to its origin.
type OriginProtocolPolicy string

const (
	OriginProtocolHTTPOnly  OriginProtocolPolicy = "http-only"
	OriginProtocolHTTPSOnly OriginProtocolPolicy = "https-only"
)

// ErrorResponseOverride is a CDN custom-error-response passthrough entry.
type ErrorResponseOverride struct {
	ResponseCode       int    `json:"response_code"`
	ResponsePagePath   string `json:"response_page_path"`
	ErrorCachingMinTTL int64  `json:"error_caching_min_ttl"`
}

// Route53HealthCheck pairs a domain with the health check monitoring it.
type Route53HealthCheck struct {
	DomainName    string `json:"domain_name"`
	HealthCheckID string `json:"health_check_id"`
}

// ShieldHealthCheck records the Shield protection bound to a Route53 health check.
type ShieldHealthCheck struct {
	DomainName    string `json:"domain_name"`
	ProtectionID  string `json:"protection_id"`
	HealthCheckID string `json:"health_check_id"`
}

// ServiceInstance is the durable aggregate for one tenant subscription. It is
// a tagged variant: InstanceType selects which of the variant-specific field
// groups below are in play; fields outside the active variant are left at
// their zero value and ignored by pipeline steps and validators.
type ServiceInstance struct {
	ID            string       `json:"id" db:"id"`
	InstanceType  InstanceType `json:"instance_type" db:"instance_type"`
	DomainNames   []string     `json:"domain_names" db:"domain_names"`
	DeactivatedAt *time.Time   `json:"deactivated_at,omitempty" db:"deactivated_at"`

	CurrentCertificateID *int64 `json:"current_certificate_id,omitempty" db:"current_certificate_id"`
	NewCertificateID     *int64 `json:"new_certificate_id,omitempty" db:"new_certificate_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// ALB variant fields.
	AlbListenerARN         string `json:"alb_listener_arn,omitempty" db:"alb_listener_arn"`
	AlbARN                 string `json:"alb_arn,omitempty" db:"alb_arn"`
	DomainInternal         string `json:"domain_internal,omitempty" db:"domain_internal"`
	Route53AliasHostedZone string `json:"route53_alias_hosted_zone,omitempty" db:"route53_alias_hosted_zone"`

	// CDN variant fields (also present on cdn-dedicated-waf).
	CloudFrontDistributionID  string                           `json:"cloudfront_distribution_id,omitempty" db:"cloudfront_distribution_id"`
	CloudFrontDistributionARN string                           `json:"cloudfront_distribution_arn,omitempty" db:"cloudfront_distribution_arn"`
	CloudFrontOriginHostname  string                           `json:"cloudfront_origin_hostname,omitempty" db:"cloudfront_origin_hostname"`
	CloudFrontOriginPath      string                           `json:"cloudfront_origin_path,omitempty" db:"cloudfront_origin_path"`
	ForwardCookiePolicy       CookiePolicy                     `json:"forward_cookie_policy,omitempty" db:"forward_cookie_policy"`
	ForwardedCookies          []string                         `json:"forwarded_cookies,omitempty" db:"forwarded_cookies"`
	ForwardedHeaders          []string                         `json:"forwarded_headers,omitempty" db:"forwarded_headers"`
	OriginProtocolPolicy      OriginProtocolPolicy             `json:"origin_protocol_policy,omitempty" db:"origin_protocol_policy"`
	ErrorResponses            map[string]ErrorResponseOverride `json:"error_responses,omitempty" db:"error_responses"`

	// cdn-dedicated-waf variant fields.
	DedicatedWAFWebACLID        string               `json:"dedicated_waf_web_acl_id,omitempty" db:"dedicated_waf_web_acl_id"`
	DedicatedWAFWebACLName      string               `json:"dedicated_waf_web_acl_name,omitempty" db:"dedicated_waf_web_acl_name"`
	DedicatedWAFWebACLARN       string               `json:"dedicated_waf_web_acl_arn,omitempty" db:"dedicated_waf_web_acl_arn"`
	Route53HealthChecks         []Route53HealthCheck `json:"route53_health_checks,omitempty" db:"route53_health_checks"`
	ShieldAssociatedHealthCheck *ShieldHealthCheck   `json:"shield_associated_health_check,omitempty" db:"shield_associated_health_check"`
}

// IsDeactivated reports whether the instance has been deprovisioned.
func (s *ServiceInstance) IsDeactivated() bool {
	return s.DeactivatedAt != nil
}

// IsCDN reports whether the instance is a CDN or cdn-dedicated-waf variant,
// i.e. whether CDN-shaped parameters and pipeline steps apply to it.
func (s *ServiceInstance) IsCDN() bool {
	return s.InstanceType == InstanceTypeCDN || s.InstanceType == InstanceTypeCDNDedicatedWAF
}

// IsALB reports whether the instance is the ALB variant.
func (s *ServiceInstance) IsALB() bool {
	return s.InstanceType == InstanceTypeALB
}

// HasDedicatedWAF reports whether the instance carries its own web-ACL,
// i.e. whether it is the cdn-dedicated-waf variant.
func (s *ServiceInstance) HasDedicatedWAF() bool {
	return s.InstanceType == InstanceTypeCDNDedicatedWAF
}
