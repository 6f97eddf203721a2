package models

import "time"

// OperationAction is the tenant intent an Operation carries out.
type OperationAction string

const (
	OperationActionProvision   OperationAction = "provision"
	OperationActionDeprovision OperationAction = "deprovision"
	OperationActionUpdate      OperationAction = "update"
	OperationActionRenew       OperationAction = "renew"
)

// OperationState is the lifecycle state of an Operation's pipeline.
type OperationState string

const (
	OperationStateInProgress OperationState = "in-progress"
	OperationStateSucceeded  OperationState = "succeeded"
	OperationStateFailed     OperationState = "failed"
)

// Operation is one logical tenant request, whose execution is a pipeline of
// task steps. An instance has an active operation iff a row exists for it
// with State == OperationStateInProgress; that invariant is enforced by the
// repository at creation time, not by this type.
type Operation struct {
	ID                int64           `json:"id" db:"id"`
	ServiceInstanceID string          `json:"service_instance_id" db:"service_instance_id"`
	Action            OperationAction `json:"action" db:"action"`
	State             OperationState  `json:"state" db:"state"`
	StepDescription   string          `json:"step_description" db:"step_description"`
	CorrelationID     string          `json:"correlation_id" db:"correlation_id"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// IsInProgress reports whether the operation's pipeline is still running.
func (o *Operation) IsInProgress() bool {
	return o.State == OperationStateInProgress
}

// IsTerminal reports whether the operation reached a final state.
func (o *Operation) IsTerminal() bool {
	return o.State == OperationStateSucceeded || o.State == OperationStateFailed
}
