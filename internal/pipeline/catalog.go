package pipeline

import "github.com/banhbaoring/dns-broker/internal/models"

// Action identifies which OSB verb an operation is running steps for.
type Action string

const (
	ActionProvision   Action = "provision"
	ActionUpdate      Action = "update"
	ActionDeprovision Action = "deprovision"
)

// catalog is the static plan: for each instance type and action, the ordered
// list of step names the runtime drives to completion. It is a lookup table,
// not a builder or DSL, because the plan set is small and fixed at compile
// time — the operation engine's whole job is making each of these steps
// durable and retryable, not making the plan itself dynamic.
var catalog = map[models.InstanceType]map[Action][]string{
	models.InstanceTypeALB: {
		ActionProvision: {
			StepIssueCertificate,
			StepUploadCertificate,
			StepAttachALBListener,
			StepSwapCertificate,
			StepCleanupOldCert,
		},
		ActionUpdate: {
			StepIssueCertificate,
			StepUploadCertificate,
			StepAttachALBListener,
			StepSwapCertificate,
			StepCleanupOldCert,
		},
		ActionDeprovision: {
			StepDetachALBListener,
			StepDeleteCurrentCert,
			StepDeactivateInstance,
		},
	},
	models.InstanceTypeCDN: {
		ActionProvision: {
			StepIssueCertificate,
			StepUploadCertificate,
			StepApplyCDNDistribution,
			StepSwapCertificate,
			StepCleanupOldCert,
		},
		ActionUpdate: {
			StepIssueCertificate,
			StepUploadCertificate,
			StepApplyCDNDistribution,
			StepSwapCertificate,
			StepCleanupOldCert,
		},
		ActionDeprovision: {
			StepDeleteCDN,
			StepDeleteCurrentCert,
			StepDeactivateInstance,
		},
	},
	models.InstanceTypeCDNDedicatedWAF: {
		ActionProvision: {
			StepCreateDedicatedWAF,
			StepCreateHealthChecks,
			StepIssueCertificate,
			StepUploadCertificate,
			StepApplyCDNDistribution,
			StepSwapCertificate,
			StepCleanupOldCert,
		},
		ActionUpdate: {
			StepCreateDedicatedWAF,
			StepCreateHealthChecks,
			StepIssueCertificate,
			StepUploadCertificate,
			StepApplyCDNDistribution,
			StepSwapCertificate,
			StepCleanupOldCert,
		},
		ActionDeprovision: {
			StepDeleteCDN,
			StepDeleteHealthChecks,
			StepDeleteDedicatedWAF,
			StepDeleteCurrentCert,
			StepDeactivateInstance,
		},
	},
	// The migration variant exists only to let an already-provisioned
	// out-of-band instance be imported as a broker-managed record; it runs
	// no pipeline steps for any action.
	models.InstanceTypeMigration: {
		ActionProvision:   {},
		ActionUpdate:      {},
		ActionDeprovision: {},
	},
}

// StepsFor returns the ordered step list for an instance type and action. A
// nil or empty result (including for an unrecognized instance type) means
// the operation has no work to do and should be completed immediately.
func StepsFor(instanceType models.InstanceType, action Action) []string {
	return catalog[instanceType][action]
}
