package models

import "time"

// Challenge is a single per-authorization ACME DNS-01 challenge record.
type Challenge struct {
	Domain           string `json:"domain"`
	Token            string `json:"token"`
	KeyAuthorization string `json:"key_authorization"`
	Status           string `json:"status"`
}

// Certificate is a TLS certificate obtained from an ACME certificate
// authority on behalf of exactly one ServiceInstance. A certificate moves
// through the pipeline from CSR, through order and challenge, to a signed
// leaf/chain, to an uploaded cloud identity-store entry referenced by
// IAMServerCertificateID.
type Certificate struct {
	ID                     int64       `json:"id" db:"id"`
	ServiceInstanceID      string      `json:"service_instance_id" db:"service_instance_id"`
	PrivateKeyPEM          string      `json:"-" db:"private_key_pem"`
	LeafPEM                string      `json:"-" db:"leaf_pem"`
	FullChainPEM           string      `json:"-" db:"fullchain_pem"`
	CSRPEM                 string      `json:"-" db:"csr_pem"`
	OrderJSON              string      `json:"-" db:"order_json"`
	Challenges             []Challenge `json:"challenges,omitempty" db:"challenges"`
	IAMServerCertificateID string      `json:"iam_server_certificate_id,omitempty" db:"iam_server_certificate_id"`
	CreatedAt              time.Time   `json:"created_at" db:"created_at"`
}

// IsUploaded reports whether the certificate has been pushed to the cloud
// identity store and carries a cloud-side identifier.
func (c *Certificate) IsUploaded() bool {
	return c.IAMServerCertificateID != ""
}

// IsIssued reports whether the ACME authority has returned a signed leaf.
func (c *Certificate) IsIssued() bool {
	return c.LeafPEM != ""
}
