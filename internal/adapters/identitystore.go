package adapters

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
)

// ACMIdentityStore uploads and removes certificates from AWS Certificate
// Manager, the cloud-side identity store referenced by a Certificate's
// iam_server_certificate_id.
type ACMIdentityStore struct {
	client *acm.Client
}

// NewACMIdentityStore builds an ACMIdentityStore.
func NewACMIdentityStore(client *acm.Client) *ACMIdentityStore {
	return &ACMIdentityStore{client: client}
}

// Upload imports a certificate and private key, returning the ACM ARN.
func (s *ACMIdentityStore) Upload(ctx context.Context, certPEM, privateKeyPEM, chainPEM string) (string, error) {
	out, err := s.client.ImportCertificate(ctx, &acm.ImportCertificateInput{
		Certificate:      []byte(certPEM),
		PrivateKey:       []byte(privateKeyPEM),
		CertificateChain: []byte(chainPEM),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.CertificateArn), nil
}

// List returns the ARNs of every certificate currently imported.
func (s *ACMIdentityStore) List(ctx context.Context) ([]string, error) {
	var arns []string
	paginator := acm.NewListCertificatesPaginator(s.client, &acm.ListCertificatesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, summary := range page.CertificateSummaryList {
			arns = append(arns, aws.ToString(summary.CertificateArn))
		}
	}
	return arns, nil
}

// Delete removes a certificate by ARN. Tolerates the certificate already
// being absent, per the adapter contract.
func (s *ACMIdentityStore) Delete(ctx context.Context, arn string) error {
	_, err := s.client.DeleteCertificate(ctx, &acm.DeleteCertificateInput{CertificateArn: aws.String(arn)})
	if isACMNotFound(err) {
		return nil
	}
	return err
}

func isACMNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *acm.ResourceNotFoundException
	if errors.As(err, &nf) {
		return true
	}
	return strings.Contains(err.Error(), "ResourceNotFoundException")
}
