package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/banhbaoring/dns-broker/internal/middleware"
	"github.com/banhbaoring/dns-broker/internal/models"
)

const (
	queueName       = "pipeline:tasks"
	delayedSetName  = "pipeline:delayed"
	dequeueTimeout  = 5 * time.Second
	promoteInterval = 1 * time.Second
	attemptTTL      = 24 * time.Hour
)

// stepDescriptions gives each step name the human-readable text persisted to
// an operation's step_description, polled back to the tenant by last_operation.
var stepDescriptions = map[string]string{
	StepIssueCertificate:     "requesting a TLS certificate",
	StepUploadCertificate:    "uploading the certificate",
	StepAttachALBListener:    "attaching the certificate to the load balancer",
	StepApplyCDNDistribution: "applying the CDN distribution configuration",
	StepCreateDedicatedWAF:   "provisioning the dedicated web-ACL",
	StepCreateHealthChecks:   "creating DNS health checks",
	StepSwapCertificate:      "switching traffic to the new certificate",
	StepCleanupOldCert:       "cleaning up the previous certificate",

	StepDetachALBListener:  "detaching the certificate from the load balancer",
	StepDeleteCDN:          "deleting the CDN distribution",
	StepDeleteDedicatedWAF: "deleting the dedicated web-ACL",
	StepDeleteHealthChecks: "deleting DNS health checks",
	StepDeleteCurrentCert:  "deleting the certificate",
	StepDeactivateInstance: "deactivating the instance",
}

// task is the payload carried on the FIFO queue. StepIndex always addresses
// into the catalog's step list for the operation's instance type and action,
// recomputed fresh on every dequeue rather than embedded, so a catalog change
// between releases can't desync an in-flight task from stale cached steps.
type task struct {
	OperationID   int64  `json:"operation_id"`
	StepIndex     int    `json:"step_index"`
	CorrelationID string `json:"correlation_id"`
}

// Runtime drives operations' pipelines to completion using a Redis-backed
// FIFO queue, bounded per-step retries, and exponential backoff between
// retries, mirroring at-least-once delivery with idempotent steps rather than
// a distributed transaction.
type Runtime struct {
	deps  *Deps
	redis redisQueue
}

// redisQueue is the subset of *database.Redis the runtime needs, narrowed so
// tests can supply an in-memory fake.
type redisQueue interface {
	Enqueue(ctx context.Context, queue string, payload string) error
	Dequeue(ctx context.Context, queue string, timeout time.Duration) (string, error)
	RequeueWithDelay(ctx context.Context, delayedSet string, payload string, delay time.Duration) error
	PromoteDue(ctx context.Context, delayedSet, queue string) (int, error)
	IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error)
}

// NewRuntime builds a Runtime against deps and a Redis-backed queue.
func NewRuntime(deps *Deps, redis redisQueue) *Runtime {
	return &Runtime{deps: deps, redis: redis}
}

// Enqueue starts (or resumes) an operation's pipeline at step 0. If the
// operation's instance type and action map to zero steps — the migration
// variant's whole catalog, or any action the catalog doesn't cover — the
// operation is marked succeeded immediately rather than entering the queue.
func (rt *Runtime) Enqueue(ctx context.Context, op *models.Operation, instance *models.ServiceInstance) error {
	steps := StepsFor(instance.InstanceType, Action(op.Action))
	if len(steps) == 0 {
		return rt.deps.Operations.MarkSucceeded(ctx, op.ID)
	}
	return rt.enqueueStep(ctx, task{OperationID: op.ID, StepIndex: 0, CorrelationID: op.CorrelationID})
}

func (rt *Runtime) enqueueStep(ctx context.Context, t task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return rt.redis.Enqueue(ctx, queueName, string(payload))
}

// ResumePending re-enqueues every operation left in-progress from a prior
// process's lifetime. Resumption always restarts at step 0: the operation
// carries no persisted step index, and replaying an already-completed step
// is safe, merely wasteful, since every step is idempotent.
func (rt *Runtime) ResumePending(ctx context.Context) error {
	ops, err := rt.deps.Operations.ListInProgress(ctx)
	if err != nil {
		return fmt.Errorf("listing in-progress operations to resume: %w", err)
	}
	for _, op := range ops {
		if err := rt.enqueueStep(ctx, task{OperationID: op.ID, StepIndex: 0, CorrelationID: op.CorrelationID}); err != nil {
			return fmt.Errorf("resuming operation %d: %w", op.ID, err)
		}
		rt.deps.Logger.Info("resumed in-progress operation", "operation_id", op.ID, "correlation_id", op.CorrelationID)
	}
	return nil
}

// RunWorker loops dequeuing and executing tasks until ctx is cancelled. A
// process typically runs several of these concurrently.
func (rt *Runtime) RunWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, err := rt.redis.Dequeue(ctx, queueName, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			rt.deps.Logger.Error("dequeue failed", "error", err)
			continue
		}
		if payload == "" {
			continue
		}

		var t task
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			rt.deps.Logger.Error("dropping malformed task payload", "error", err, "payload", payload)
			continue
		}

		rt.runTask(ctx, t)
	}
}

// RunPromoter periodically moves due delayed retries onto the live queue
// until ctx is cancelled.
func (rt *Runtime) RunPromoter(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rt.redis.PromoteDue(ctx, delayedSetName, queueName); err != nil {
				rt.deps.Logger.Error("promoting delayed tasks failed", "error", err)
			}
		}
	}
}

func (rt *Runtime) runTask(ctx context.Context, t task) {
	log := rt.deps.Logger.With("operation_id", t.OperationID, "correlation_id", t.CorrelationID, "step_index", t.StepIndex)

	op, err := rt.deps.Operations.GetByID(ctx, t.OperationID)
	if err != nil || op == nil {
		log.Error("operation not found for task", "error", err)
		return
	}
	if op.IsTerminal() {
		return // already finished by a previous, since-duplicated delivery
	}

	instance, err := rt.deps.Instances.GetByID(ctx, op.ServiceInstanceID)
	if err != nil || instance == nil {
		log.Error("instance not found for operation", "error", err)
		rt.fail(ctx, op, "unknown", "instance record not found")
		return
	}
	plan := string(instance.InstanceType)

	steps := StepsFor(instance.InstanceType, Action(op.Action))
	if t.StepIndex >= len(steps) {
		rt.succeed(ctx, op, plan)
		return
	}
	name := steps[t.StepIndex]

	step, ok := Lookup(name)
	if !ok {
		log.Error("no step registered under name", "step", name)
		rt.fail(ctx, op, plan, fmt.Sprintf("internal error: unknown step %q", name))
		return
	}

	if desc, ok := stepDescriptions[name]; ok {
		if err := rt.deps.Operations.UpdateStepDescription(ctx, op.ID, desc); err != nil {
			log.Warn("updating step description failed", "error", err)
		}
	}

	stepErr := step(ctx, rt.deps, op, instance)
	if stepErr == nil {
		rt.advance(ctx, op, t)
		return
	}

	if !isRetryable(stepErr) {
		log.Error("step failed permanently", "step", name, "error", stepErr)
		rt.fail(ctx, op, plan, fmt.Sprintf("%s: %s", name, stepErr.Error()))
		return
	}

	attempts, err := rt.redis.IncrWithExpire(ctx, attemptsKey(op.ID, t.StepIndex), attemptTTL)
	if err != nil {
		log.Error("tracking step attempts failed", "error", err)
		attempts = 1
	}

	if int(attempts) >= rt.deps.Config.StepMaxAttempts {
		log.Error("step exhausted retry budget", "step", name, "attempts", attempts, "error", stepErr)
		rt.fail(ctx, op, plan, fmt.Sprintf("%s: %s (exhausted %d attempts)", name, stepErr.Error(), attempts))
		return
	}

	delay := backoff(rt.deps.Config.StepBaseBackoff, rt.deps.Config.StepMaxBackoff, attempts)
	middleware.StepRetriesTotal.WithLabelValues(name).Inc()
	log.Warn("step failed, retrying", "step", name, "attempt", attempts, "delay", delay, "error", stepErr)

	payload, err := json.Marshal(t)
	if err != nil {
		log.Error("marshaling retry payload failed", "error", err)
		return
	}
	if err := rt.redis.RequeueWithDelay(ctx, delayedSetName, string(payload), delay); err != nil {
		log.Error("scheduling retry failed", "error", err)
	}
}

func (rt *Runtime) advance(ctx context.Context, op *models.Operation, t task) {
	next := task{OperationID: t.OperationID, StepIndex: t.StepIndex + 1, CorrelationID: t.CorrelationID}
	if err := rt.enqueueStep(ctx, next); err != nil {
		rt.deps.Logger.Error("enqueuing next step failed", "operation_id", op.ID, "error", err)
	}
}

func (rt *Runtime) succeed(ctx context.Context, op *models.Operation, plan string) {
	if err := rt.deps.Operations.MarkSucceeded(ctx, op.ID); err != nil {
		rt.deps.Logger.Error("marking operation succeeded failed", "operation_id", op.ID, "error", err)
		return
	}
	middleware.OperationsTotal.WithLabelValues(string(op.Action), plan, string(models.OperationStateSucceeded)).Inc()
}

func (rt *Runtime) fail(ctx context.Context, op *models.Operation, plan, description string) {
	if err := rt.deps.Operations.MarkFailed(ctx, op.ID, description); err != nil {
		rt.deps.Logger.Error("marking operation failed failed", "operation_id", op.ID, "error", err)
		return
	}
	middleware.OperationsTotal.WithLabelValues(string(op.Action), plan, string(models.OperationStateFailed)).Inc()
}

func attemptsKey(operationID int64, stepIndex int) string {
	return fmt.Sprintf("pipeline:attempts:%d:%d", operationID, stepIndex)
}

// backoff computes a bounded exponential delay: base * 2^(attempt-1), capped at max.
func backoff(base, max time.Duration, attempt int64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if d > max {
		return max
	}
	return d
}
