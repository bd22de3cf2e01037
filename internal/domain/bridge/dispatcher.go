package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp/internal/shared/schema"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// Permissions is the grant lookup the dispatcher gates on
type Permissions interface {
	Status(ctx context.Context, appID string, manifest *types.Manifest, p types.PermissionType) (types.GrantStatus, bool, error)
	Record(ctx context.Context, appID string, manifest *types.Manifest, decisions []permission.Decision) ([]types.Grant, error)
}

// Session is the running bundle instance a dispatcher serves
type Session struct {
	Identity types.Identity
	Manifest *types.Manifest
}

// Responder receives the single response of one request
type Responder func(types.BridgeResponse)

// Options configures a Dispatcher
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Dispatcher is the stateless command router of one bundle instance
type Dispatcher struct {
	session Session
	host    Host
	perms   Permissions
	logger  *zap.Logger
	metrics *monitoring.Metrics
	wg      sync.WaitGroup
}

// New creates a Dispatcher. The dispatcher holds host without owning it;
// the caller keeps host alive for the dispatcher's lifetime.
func New(session Session, host Host, perms Permissions, opts Options) *Dispatcher {
	if session.Manifest == nil {
		session.Manifest = &types.Manifest{VersionID: session.Identity.VersionID}
	}
	return &Dispatcher{
		session: session,
		host:    host,
		perms:   perms,
		logger:  logging.OrNop(opts.Logger).Named("bridge").With(logging.Identity(session.Identity)),
		metrics: opts.Metrics,
	}
}

// Session returns the bundle instance the dispatcher serves
func (d *Dispatcher) Session() Session {
	return d.session
}

// Dispatch decodes one raw message and answers it on respond exactly once.
// Malformed messages are answered before Dispatch returns; everything else
// is handled on its own goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte, respond Responder) {
	var once sync.Once
	reply := func(resp types.BridgeResponse) {
		once.Do(func() { respond(resp) })
	}

	req, err := decode(raw)
	if err != nil {
		d.logger.Debug("malformed bridge message", zap.Error(err))
		d.metrics.RecordBridgeRequest(actionLabel(req.Action), string(types.StatusError), 0)
		reply(errorResponse(req.ID, Fail(types.BridgeErrUnexpectedFormat, err.Error())))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		reply(d.Handle(ctx, req))
	}()
}

// Wait blocks until every dispatched request has been answered
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Handle processes one request synchronously
func (d *Dispatcher) Handle(ctx context.Context, req types.BridgeRequest) (resp types.BridgeResponse) {
	start := time.Now()
	logger := d.logger.With(logging.Action(req.Action), logging.RequestID(req.ID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("bridge handler panicked", zap.Any("panic", r))
			resp = errorResponse(req.ID, Fail(types.BridgeErrHost, "host failed"))
		}
		d.metrics.RecordBridgeRequest(actionLabel(req.Action), string(resp.Status), time.Since(start))
	}()

	act, ok := actions[req.Action]
	if !ok {
		return errorResponse(req.ID, Fail(types.BridgeErrUnexpectedFormat, fmt.Sprintf("unknown action %q", req.Action)))
	}
	if validator, ok := paramValidators[req.Action]; ok {
		params := req.Params
		if params == nil {
			params = map[string]interface{}{}
		}
		if err := schema.ValidateValue(validator, params); err != nil {
			return errorResponse(req.ID, Fail(types.BridgeErrUnexpectedFormat, err.Error()))
		}
	}
	if act.gate != "" {
		if failure := d.gate(ctx, act.gate); failure != nil {
			logger.Debug("bridge request blocked", zap.String("permission", string(act.gate)), zap.String("reason", string(failure.Type)))
			return errorResponse(req.ID, failure)
		}
	}

	payload, err := act.handle(ctx, d, req.Params)
	if err != nil {
		failure := failureOf(err)
		logger.Warn("bridge request failed", zap.String("type", string(failure.Type)), zap.Error(err))
		return errorResponse(req.ID, failure)
	}
	logger.Debug("bridge request served")
	return types.BridgeResponse{ID: req.ID, Status: types.StatusSuccess, Payload: payload}
}

// gate returns nil when the permission is allowed
func (d *Dispatcher) gate(ctx context.Context, p types.PermissionType) *Failure {
	status, found, err := d.perms.Status(ctx, d.session.Identity.AppID, d.session.Manifest, p)
	switch {
	case err != nil:
		return Fail(types.BridgeErrUnknown, "permission lookup failed")
	case !found:
		return Fail(types.BridgeErrPermissionDenied, fmt.Sprintf("%s has not been granted", p))
	case status == types.GrantAllowed:
		return nil
	case status == types.GrantUnavailable:
		return Fail(types.BridgeErrPermissionUnavailable, fmt.Sprintf("%s is not available", p))
	default:
		return Fail(types.BridgeErrPermissionDenied, fmt.Sprintf("%s was denied", p))
	}
}

func decode(raw []byte) (types.BridgeRequest, error) {
	var req types.BridgeRequest
	if err := schema.Validate(envelopeValidator, raw); err != nil {
		var probe struct {
			ID     interface{} `json:"id"`
			Action interface{} `json:"action"`
		}
		if sonic.Unmarshal(raw, &probe) == nil {
			req.ID, _ = probe.ID.(string)
			req.Action, _ = probe.Action.(string)
		}
		return req, err
	}
	if err := sonic.Unmarshal(raw, &req); err != nil {
		return req, err
	}
	return req, nil
}

// bind decodes generic params into a typed struct
func bind(params map[string]interface{}, dst interface{}) error {
	data, err := sonic.Marshal(params)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		return Fail(types.BridgeErrUnexpectedFormat, err.Error())
	}
	return nil
}

func failureOf(err error) *Failure {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fail(types.BridgeErrHost, "request cancelled")
	}
	return Fail(types.BridgeErrHost, err.Error())
}

func errorResponse(id string, failure *Failure) types.BridgeResponse {
	return types.BridgeResponse{
		ID:      id,
		Status:  types.StatusError,
		Payload: types.BridgeError{Type: failure.Type, Message: failure.Message},
	}
}

func actionLabel(action string) string {
	if _, ok := actions[action]; ok {
		return action
	}
	return "unknown"
}
