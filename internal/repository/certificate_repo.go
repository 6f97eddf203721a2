// Package repository provides data access layer implementations.
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

// CertificateRepository stores TLS certificates issued on behalf of service
// instances, including the in-flight ones still mid-ACME-order.
type CertificateRepository interface {
	Create(ctx context.Context, cert *models.Certificate) error
	GetByID(ctx context.Context, id int64) (*models.Certificate, error)
	Update(ctx context.Context, cert *models.Certificate) error
	Delete(ctx context.Context, id int64) error
	// ListDuplicatesByInstance returns, in ascending id order, every
	// certificate owned by instanceID other than exceptID. Used by the
	// reconciler to find certificates left behind by a certificate swap.
	ListDuplicatesByInstance(ctx context.Context, instanceID string, exceptID int64) ([]*models.Certificate, error)
}

type certificateRepo struct {
	pool *pgxpool.Pool
}

// NewCertificateRepository creates a new certificate repository.
func NewCertificateRepository(pool *pgxpool.Pool) CertificateRepository {
	return &certificateRepo{pool: pool}
}

func (r *certificateRepo) Create(ctx context.Context, cert *models.Certificate) error {
	challenges, err := json.Marshal(cert.Challenges)
	if err != nil {
		return fmt.Errorf("marshaling challenges: %w", err)
	}

	query := `
		INSERT INTO certificates (
			service_instance_id, private_key_pem, leaf_pem, fullchain_pem,
			csr_pem, order_json, challenges, iam_server_certificate_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at`

	return r.pool.QueryRow(ctx, query,
		cert.ServiceInstanceID,
		cert.PrivateKeyPEM,
		cert.LeafPEM,
		cert.FullChainPEM,
		cert.CSRPEM,
		cert.OrderJSON,
		challenges,
		cert.IAMServerCertificateID,
	).Scan(&cert.ID, &cert.CreatedAt)
}

func (r *certificateRepo) GetByID(ctx context.Context, id int64) (*models.Certificate, error) {
	query := `
		SELECT id, service_instance_id, private_key_pem, leaf_pem, fullchain_pem,
		       csr_pem, order_json, challenges, iam_server_certificate_id, created_at
		FROM certificates WHERE id = $1`

	cert, err := scanCertificate(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cert, nil
}

func (r *certificateRepo) Update(ctx context.Context, cert *models.Certificate) error {
	challenges, err := json.Marshal(cert.Challenges)
	if err != nil {
		return fmt.Errorf("marshaling challenges: %w", err)
	}

	query := `
		UPDATE certificates SET
			private_key_pem = $1, leaf_pem = $2, fullchain_pem = $3,
			csr_pem = $4, order_json = $5, challenges = $6,
			iam_server_certificate_id = $7
		WHERE id = $8`

	result, err := r.pool.Exec(ctx, query,
		cert.PrivateKeyPEM,
		cert.LeafPEM,
		cert.FullChainPEM,
		cert.CSRPEM,
		cert.OrderJSON,
		challenges,
		cert.IAMServerCertificateID,
		cert.ID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *certificateRepo) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM certificates WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *certificateRepo) ListDuplicatesByInstance(ctx context.Context, instanceID string, exceptID int64) ([]*models.Certificate, error) {
	query := `
		SELECT id, service_instance_id, private_key_pem, leaf_pem, fullchain_pem,
		       csr_pem, order_json, challenges, iam_server_certificate_id, created_at
		FROM certificates
		WHERE service_instance_id = $1 AND id != $2
		ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, instanceID, exceptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var certs []*models.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*models.Certificate, error) {
	var cert models.Certificate
	var challenges []byte

	err := row.Scan(
		&cert.ID,
		&cert.ServiceInstanceID,
		&cert.PrivateKeyPEM,
		&cert.LeafPEM,
		&cert.FullChainPEM,
		&cert.CSRPEM,
		&cert.OrderJSON,
		&challenges,
		&cert.IAMServerCertificateID,
		&cert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(challenges) > 0 {
		if err := json.Unmarshal(challenges, &cert.Challenges); err != nil {
			return nil, fmt.Errorf("unmarshaling challenges: %w", err)
		}
	}

	return &cert, nil
}

// Compile-time check to ensure certificateRepo implements CertificateRepository.
var _ CertificateRepository = (*certificateRepo)(nil)
