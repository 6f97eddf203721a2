// Package pipeline implements the task step registry, the static
// plan-by-action pipeline catalog, and the FIFO worker runtime that drives
// one operation's steps to completion or failure.
package pipeline

import (
	"log/slog"

	"github.com/banhbaoring/dns-broker/internal/adapters"
	"github.com/banhbaoring/dns-broker/internal/config"
	"github.com/banhbaoring/dns-broker/internal/repository"
)

// Deps bundles everything a step needs: repositories for durable state and
// adapters for the external cloud calls. Steps are plain functions taking
// Deps as an explicit parameter rather than closing over package globals, per
// the "pass config explicitly" design note.
type Deps struct {
	Instances    repository.ServiceInstanceRepository
	Operations   repository.OperationRepository
	Certificates repository.CertificateRepository

	DNS           *adapters.Route53DNS
	CA            *adapters.CertificateAuthority
	IdentityStore *adapters.ACMIdentityStore
	LoadBalancer  *adapters.ALBListener
	CDN           *adapters.CloudFrontCDN
	Firewall      *adapters.WebACL

	Config config.BrokerConfig
	Logger *slog.Logger
}
