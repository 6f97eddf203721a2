// Package broker implements the Open Service Broker request handler: input
// validation, aggregate construction, operation bookkeeping, and pipeline
// dispatch. It has no HTTP awareness; internal/transport/osb adapts it to
// the wire contract.
package broker

import "github.com/banhbaoring/dns-broker/internal/models"

// Plan ids advertised by the catalog, fixed identifiers per the broker
// contract. They double as the instance_type discriminator: provision maps
// a plan id straight onto a models.InstanceType.
const (
	PlanALB            = "alb"
	PlanCDN             = "cdn"
	PlanCDNDedicatedWAF = "cdn-dedicated-waf"

	ServiceID = "dns-broker"
)

var planToInstanceType = map[string]models.InstanceType{
	PlanALB:             models.InstanceTypeALB,
	PlanCDN:             models.InstanceTypeCDN,
	PlanCDNDedicatedWAF: models.InstanceTypeCDNDedicatedWAF,
}

// Catalog is the static document returned by GET /v2/catalog.
type Catalog struct {
	Services []Service `json:"services"`
}

// Service describes the one service this broker offers, with one plan per
// supported instance variant.
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Bindable    bool    `json:"bindable"`
	Plans       []Plan  `json:"plans"`
}

// Plan describes one provisionable shape of custom-domain attachment.
type Plan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GetCatalog returns the static catalog document. Pure, no side effects.
func GetCatalog() Catalog {
	return Catalog{
		Services: []Service{{
			ID:          ServiceID,
			Name:        "custom-domain",
			Description: "Attach a custom DNS name to an application, with a managed TLS certificate",
			Bindable:    false,
			Plans: []Plan{
				{ID: PlanALB, Name: "alb", Description: "Custom domain terminated at the platform's shared load balancer"},
				{ID: PlanCDN, Name: "cdn", Description: "Custom domain fronted by a dedicated CDN distribution"},
				{ID: PlanCDNDedicatedWAF, Name: "cdn-dedicated-waf", Description: "CDN distribution with a dedicated web-ACL and health-checked DNS"},
			},
		}},
	}
}
