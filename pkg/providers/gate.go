package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"omnigate/pkg/approval"
	"omnigate/pkg/audit"
	"omnigate/pkg/broker"
	"omnigate/pkg/connections"
	"omnigate/pkg/metrics"
	"omnigate/pkg/models"
	"omnigate/pkg/policy"
	"omnigate/pkg/stream"
)

// Gate executes adapter operations under the write-approval policy. Reads and
// ungated writes go straight to the broker and are audited; gated writes are
// parked in the approval queue with zero network activity. Local state is only
// mutated before or independently of the broker call, so a failed call never
// leaves the gate inconsistent.
type Gate struct {
	Connections connections.Store
	Approvals   approval.Queue
	Audit       audit.Log
	Broker      broker.Client
	Policy      policy.Classifier
	Events      *stream.Hub
	Metrics     *metrics.Registry
	PreviewSalt []byte
}

// Invoke runs a named operation for a tenant. rawArgs is kept verbatim as the
// approval parameters so an approved request can be replayed byte for byte.
func (g *Gate) Invoke(ctx context.Context, a Adapter, tenantID, opName string, rawArgs json.RawMessage) (models.OperationResult, error) {
	spec, ok := a.Op(opName)
	if !ok {
		return models.OperationResult{}, fmt.Errorf("%w: %s.%s", ErrUnknownOperation, a.ID(), opName)
	}
	conn, err := g.requireConnected(ctx, tenantID, a.ID())
	if err != nil {
		return models.OperationResult{}, err
	}
	args, err := decodeArgs(rawArgs)
	if err != nil {
		return models.OperationResult{}, err
	}
	if g.Policy.RequiresApproval(opName) {
		return g.enqueue(ctx, a, conn, tenantID, opName, rawArgs, args)
	}
	return g.execute(ctx, a, spec, conn, tenantID, opName, rawArgs, args)
}

// ExecuteApproved consumes an approved request and replays its preserved
// parameters through the owning adapter, bypassing the classifier. The
// consumption is a single-winner transition, so concurrent executions of the
// same request make at most one broker call; the losers see ErrAlreadyDecided.
func (g *Gate) ExecuteApproved(ctx context.Context, a Adapter, req models.ApprovalRequest) (models.OperationResult, error) {
	switch req.Status {
	case models.ApprovalApproved:
	case models.ApprovalExecuted:
		return models.OperationResult{}, approval.ErrAlreadyDecided
	default:
		return models.OperationResult{}, ErrNotApproved
	}
	spec, ok := a.Op(req.Operation)
	if !ok {
		return models.OperationResult{}, fmt.Errorf("%w: %s.%s", ErrUnknownOperation, a.ID(), req.Operation)
	}
	conn, err := g.requireConnected(ctx, req.TenantID, a.ID())
	if err != nil {
		return models.OperationResult{}, err
	}
	args, err := decodeArgs(req.Parameters)
	if err != nil {
		return models.OperationResult{}, err
	}
	// Consume last, once nothing but the broker call can fail, so a guard
	// failure never burns the approval.
	consumed, err := g.Approvals.MarkExecuted(ctx, req.RequestID, req.TenantID)
	if err != nil {
		return models.OperationResult{}, err
	}
	if g.Metrics != nil {
		g.Metrics.IncApproval(models.ApprovalExecuted)
	}
	return g.execute(ctx, a, spec, conn, consumed.TenantID, consumed.Operation, consumed.Parameters, args)
}

// requireConnected enforces the readiness guard shared by every operation:
// absence or any non-connected status fails before any network activity.
func (g *Gate) requireConnected(ctx context.Context, tenantID, provider string) (models.Connection, error) {
	conn, ok, err := g.Connections.Get(ctx, tenantID, provider)
	if err != nil {
		return models.Connection{}, err
	}
	if !ok || conn.Status != models.ConnectionConnected {
		return models.Connection{}, connections.ErrNotConnected
	}
	if strings.TrimSpace(conn.ExternalConnectionID) == "" {
		return models.Connection{}, ErrMissingConnectionID
	}
	return conn, nil
}

func (g *Gate) enqueue(ctx context.Context, a Adapter, conn models.Connection, tenantID, opName string, rawArgs json.RawMessage, args Args) (models.OperationResult, error) {
	req, err := g.Approvals.Create(ctx, approval.CreateInput{
		TenantID:     tenantID,
		Provider:     a.ID(),
		ConnectionID: conn.ExternalConnectionID,
		Operation:    opName,
		Parameters:   rawArgs,
		Preview:      BuildPreview(a.ID(), opName, args, g.PreviewSalt),
	})
	if err != nil {
		return models.OperationResult{}, err
	}
	if g.Metrics != nil {
		g.Metrics.IncApproval(models.ApprovalPending)
	}
	if g.Events != nil {
		g.Events.Publish(stream.NewEvent(stream.EventApprovalCreated, req))
	}
	return models.OperationResult{ApprovalRequired: true, Approval: &req}, nil
}

func (g *Gate) execute(ctx context.Context, a Adapter, spec OpSpec, conn models.Connection, tenantID, opName string, rawArgs json.RawMessage, args Args) (models.OperationResult, error) {
	call := broker.Call{
		Provider:     a.ID(),
		ConnectionID: conn.ExternalConnectionID,
		Method:       spec.Method,
		Endpoint:     expandEndpoint(spec.Endpoint, args),
	}
	if spec.Params != nil {
		call.Params = spec.Params(args)
	}
	if spec.Method != "GET" {
		if spec.Body != nil {
			body, err := spec.Body(args)
			if err != nil {
				return models.OperationResult{}, err
			}
			call.Body = body
		} else {
			call.Body = rawArgs
		}
	}
	raw, err := g.Broker.Proxy(ctx, call)
	if g.Metrics != nil {
		g.Metrics.IncProxyCall(a.ID(), err != nil)
	}
	if err != nil {
		g.appendAudit(ctx, tenantID, a.ID(), opName, rawArgs, nil, err.Error())
		return models.OperationResult{}, err
	}
	if spec.Normalize != nil {
		raw, err = spec.Normalize(raw)
		if err != nil {
			g.appendAudit(ctx, tenantID, a.ID(), opName, rawArgs, nil, err.Error())
			return models.OperationResult{}, err
		}
	}
	g.appendAudit(ctx, tenantID, a.ID(), opName, rawArgs, raw, "")
	return models.OperationResult{Data: raw}, nil
}

func (g *Gate) appendAudit(ctx context.Context, tenantID, provider, opName string, params, result json.RawMessage, errText string) {
	audit.BestEffort(ctx, g.Audit, models.AuditRecord{
		RecordID:   uuid.New().String(),
		TenantID:   tenantID,
		Provider:   provider,
		Operation:  opName,
		Parameters: params,
		Result:     result,
		Error:      errText,
		CreatedAt:  time.Now().UTC(),
	})
}

func decodeArgs(raw json.RawMessage) (Args, error) {
	if len(raw) == 0 {
		return Args{}, nil
	}
	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, ErrInvalidArgs
	}
	if args == nil {
		args = Args{}
	}
	return args, nil
}

// BuildPreview renders a stable human-readable summary of a gated call.
// Sensitive values are replaced with truncated salted hashes.
func BuildPreview(provider, opName string, args Args, salt []byte) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+audit.RedactValue(k, args[k], salt))
	}
	return provider + "." + opName + "(" + strings.Join(parts, ", ") + ")"
}
