package adapters

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
)

// ALBListener wraps an ELBv2 client scoped to certificate management on a
// listener: the load-balancer adapter contract from the component design.
type ALBListener struct {
	client *elasticloadbalancingv2.Client
}

// NewALBListener builds an ALBListener adapter.
func NewALBListener(client *elasticloadbalancingv2.Client) *ALBListener {
	return &ALBListener{client: client}
}

// AddCertificate attaches a certificate ARN to a listener's certificate list.
func (l *ALBListener) AddCertificate(ctx context.Context, listenerARN, certARN string) error {
	_, err := l.client.AddListenerCertificates(ctx, &elasticloadbalancingv2.AddListenerCertificatesInput{
		ListenerArn:  aws.String(listenerARN),
		Certificates: []types.Certificate{{CertificateArn: aws.String(certARN)}},
	})
	return err
}

// RemoveCertificate detaches a certificate ARN from a listener. Tolerates the
// certificate already being detached.
func (l *ALBListener) RemoveCertificate(ctx context.Context, listenerARN, certARN string) error {
	_, err := l.client.RemoveListenerCertificates(ctx, &elasticloadbalancingv2.RemoveListenerCertificatesInput{
		ListenerArn:  aws.String(listenerARN),
		Certificates: []types.Certificate{{CertificateArn: aws.String(certARN)}},
	})
	if isELBNotFound(err) {
		return nil
	}
	return err
}

// ListCertificates returns every certificate ARN currently attached to a listener.
func (l *ALBListener) ListCertificates(ctx context.Context, listenerARN string) ([]string, error) {
	var arns []string
	paginator := elasticloadbalancingv2.NewDescribeListenerCertificatesPaginator(l.client, &elasticloadbalancingv2.DescribeListenerCertificatesInput{
		ListenerArn: aws.String(listenerARN),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, cert := range page.Certificates {
			arns = append(arns, aws.ToString(cert.CertificateArn))
		}
	}
	return arns, nil
}

func isELBNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.CertificateNotFoundException
	if errors.As(err, &nf) {
		return true
	}
	var lnf *types.ListenerNotFoundException
	if errors.As(err, &lnf) {
		return true
	}
	return strings.Contains(err.Error(), "CertificateNotFoundException")
}
