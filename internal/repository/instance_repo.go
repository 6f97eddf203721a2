package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banhbaoring/dns-broker/internal/models"
)

// ServiceInstanceRepository stores the tagged-variant ServiceInstance
// aggregate in a single table keyed by instance_type.
type ServiceInstanceRepository interface {
	Create(ctx context.Context, instance *models.ServiceInstance) error
	GetByID(ctx context.Context, id string) (*models.ServiceInstance, error)
	Update(ctx context.Context, instance *models.ServiceInstance) error
	Deactivate(ctx context.Context, id string) error
	// FindActiveByDomain returns the non-deactivated instance currently
	// holding domain, or nil if none does. Satisfies validators.DomainOwnerLookup.
	FindActiveByDomain(ctx context.Context, domain string) (*models.ServiceInstance, error)
	// ListAll returns every non-deactivated instance. Used by the reconciler
	// to enumerate candidates for duplicate-certificate cleanup.
	ListAll(ctx context.Context) ([]*models.ServiceInstance, error)
}

type instanceRepo struct {
	pool *pgxpool.Pool
}

// NewServiceInstanceRepository creates a new service instance repository.
func NewServiceInstanceRepository(pool *pgxpool.Pool) ServiceInstanceRepository {
	return &instanceRepo{pool: pool}
}

const instanceColumns = `
	id, instance_type, domain_names, deactivated_at,
	current_certificate_id, new_certificate_id, created_at, updated_at,
	alb_listener_arn, alb_arn, domain_internal, route53_alias_hosted_zone,
	cloudfront_distribution_id, cloudfront_distribution_arn,
	cloudfront_origin_hostname, cloudfront_origin_path,
	forward_cookie_policy, forwarded_cookies, forwarded_headers,
	origin_protocol_policy, error_responses,
	dedicated_waf_web_acl_id, dedicated_waf_web_acl_name, dedicated_waf_web_acl_arn,
	route53_health_checks, shield_associated_health_check`

func (r *instanceRepo) Create(ctx context.Context, instance *models.ServiceInstance) error {
	errorResponses, route53HealthChecks, shieldCheck, err := marshalInstanceJSON(instance)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO service_instances (
			id, instance_type, domain_names, deactivated_at,
			current_certificate_id, new_certificate_id, created_at, updated_at,
			alb_listener_arn, alb_arn, domain_internal, route53_alias_hosted_zone,
			cloudfront_distribution_id, cloudfront_distribution_arn,
			cloudfront_origin_hostname, cloudfront_origin_path,
			forward_cookie_policy, forwarded_cookies, forwarded_headers,
			origin_protocol_policy, error_responses,
			dedicated_waf_web_acl_id, dedicated_waf_web_acl_name, dedicated_waf_web_acl_arn,
			route53_health_checks, shield_associated_health_check
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), NOW(),
			$7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24
		) RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		instance.ID,
		instance.InstanceType,
		instance.DomainNames,
		instance.DeactivatedAt,
		instance.CurrentCertificateID,
		instance.NewCertificateID,
		instance.AlbListenerARN,
		instance.AlbARN,
		instance.DomainInternal,
		instance.Route53AliasHostedZone,
		instance.CloudFrontDistributionID,
		instance.CloudFrontDistributionARN,
		instance.CloudFrontOriginHostname,
		instance.CloudFrontOriginPath,
		instance.ForwardCookiePolicy,
		instance.ForwardedCookies,
		instance.ForwardedHeaders,
		instance.OriginProtocolPolicy,
		errorResponses,
		instance.DedicatedWAFWebACLID,
		instance.DedicatedWAFWebACLName,
		instance.DedicatedWAFWebACLARN,
		route53HealthChecks,
		shieldCheck,
	).Scan(&instance.CreatedAt, &instance.UpdatedAt)
}

func (r *instanceRepo) GetByID(ctx context.Context, id string) (*models.ServiceInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM service_instances WHERE id = $1`

	instance, err := scanInstance(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func (r *instanceRepo) Update(ctx context.Context, instance *models.ServiceInstance) error {
	errorResponses, route53HealthChecks, shieldCheck, err := marshalInstanceJSON(instance)
	if err != nil {
		return err
	}

	query := `
		UPDATE service_instances SET
			domain_names = $1, deactivated_at = $2,
			current_certificate_id = $3, new_certificate_id = $4, updated_at = NOW(),
			alb_listener_arn = $5, alb_arn = $6, domain_internal = $7, route53_alias_hosted_zone = $8,
			cloudfront_distribution_id = $9, cloudfront_distribution_arn = $10,
			cloudfront_origin_hostname = $11, cloudfront_origin_path = $12,
			forward_cookie_policy = $13, forwarded_cookies = $14, forwarded_headers = $15,
			origin_protocol_policy = $16, error_responses = $17,
			dedicated_waf_web_acl_id = $18, dedicated_waf_web_acl_name = $19, dedicated_waf_web_acl_arn = $20,
			route53_health_checks = $21, shield_associated_health_check = $22
		WHERE id = $23
		RETURNING updated_at`

	err = r.pool.QueryRow(ctx, query,
		instance.DomainNames,
		instance.DeactivatedAt,
		instance.CurrentCertificateID,
		instance.NewCertificateID,
		instance.AlbListenerARN,
		instance.AlbARN,
		instance.DomainInternal,
		instance.Route53AliasHostedZone,
		instance.CloudFrontDistributionID,
		instance.CloudFrontDistributionARN,
		instance.CloudFrontOriginHostname,
		instance.CloudFrontOriginPath,
		instance.ForwardCookiePolicy,
		instance.ForwardedCookies,
		instance.ForwardedHeaders,
		instance.OriginProtocolPolicy,
		errorResponses,
		instance.DedicatedWAFWebACLID,
		instance.DedicatedWAFWebACLName,
		instance.DedicatedWAFWebACLARN,
		route53HealthChecks,
		shieldCheck,
		instance.ID,
	).Scan(&instance.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return pgx.ErrNoRows
	}
	return err
}

func (r *instanceRepo) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE service_instances SET deactivated_at = NOW(), updated_at = NOW() WHERE id = $1 AND deactivated_at IS NULL`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *instanceRepo) FindActiveByDomain(ctx context.Context, domain string) (*models.ServiceInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM service_instances WHERE $1 = ANY(domain_names) AND deactivated_at IS NULL LIMIT 1`

	instance, err := scanInstance(r.pool.QueryRow(ctx, query, domain))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func (r *instanceRepo) ListAll(ctx context.Context) ([]*models.ServiceInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM service_instances WHERE deactivated_at IS NULL ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*models.ServiceInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

func marshalInstanceJSON(instance *models.ServiceInstance) (errorResponses, route53HealthChecks, shieldCheck []byte, err error) {
	if errorResponses, err = json.Marshal(instance.ErrorResponses); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling error responses: %w", err)
	}
	if route53HealthChecks, err = json.Marshal(instance.Route53HealthChecks); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling route53 health checks: %w", err)
	}
	if shieldCheck, err = json.Marshal(instance.ShieldAssociatedHealthCheck); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling shield health check: %w", err)
	}
	return errorResponses, route53HealthChecks, shieldCheck, nil
}

func scanInstance(row rowScanner) (*models.ServiceInstance, error) {
	var instance models.ServiceInstance
	var errorResponses, route53HealthChecks, shieldCheck []byte

	err := row.Scan(
		&instance.ID,
		&instance.InstanceType,
		&instance.DomainNames,
		&instance.DeactivatedAt,
		&instance.CurrentCertificateID,
		&instance.NewCertificateID,
		&instance.CreatedAt,
		&instance.UpdatedAt,
		&instance.AlbListenerARN,
		&instance.AlbARN,
		&instance.DomainInternal,
		&instance.Route53AliasHostedZone,
		&instance.CloudFrontDistributionID,
		&instance.CloudFrontDistributionARN,
		&instance.CloudFrontOriginHostname,
		&instance.CloudFrontOriginPath,
		&instance.ForwardCookiePolicy,
		&instance.ForwardedCookies,
		&instance.ForwardedHeaders,
		&instance.OriginProtocolPolicy,
		&errorResponses,
		&instance.DedicatedWAFWebACLID,
		&instance.DedicatedWAFWebACLName,
		&instance.DedicatedWAFWebACLARN,
		&route53HealthChecks,
		&shieldCheck,
	)
	if err != nil {
		return nil, err
	}

	if len(errorResponses) > 0 {
		if err := json.Unmarshal(errorResponses, &instance.ErrorResponses); err != nil {
			return nil, fmt.Errorf("unmarshaling error responses: %w", err)
		}
	}
	if len(route53HealthChecks) > 0 {
		if err := json.Unmarshal(route53HealthChecks, &instance.Route53HealthChecks); err != nil {
			return nil, fmt.Errorf("unmarshaling route53 health checks: %w", err)
		}
	}
	if len(shieldCheck) > 0 {
		if err := json.Unmarshal(shieldCheck, &instance.ShieldAssociatedHealthCheck); err != nil {
			return nil, fmt.Errorf("unmarshaling shield health check: %w", err)
		}
	}

	return &instance, nil
}

// Compile-time check to ensure instanceRepo implements ServiceInstanceRepository.
var _ ServiceInstanceRepository = (*instanceRepo)(nil)
