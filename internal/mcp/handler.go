package mcp

import (
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gzhole/toolguard/internal/logger"
	"github.com/gzhole/toolguard/internal/normalize"
	"github.com/gzhole/toolguard/internal/ratelimit"
)

// AuditFunc receives one decision per intercepted tools/call.
type AuditFunc func(event logger.AuditEvent)

// MessageHandler applies the limiter to tools/call messages.
type MessageHandler struct {
	Limiter *ratelimit.Limiter

	// Session and RunID identify the caller when the message carries no
	// _meta of its own.
	Session string
	RunID   string

	// Aliases maps server tool names onto guarded tool names, e.g.
	// "read_file" -> "read".
	Aliases map[string]string

	OnAudit AuditFunc
	Log     *zap.Logger
}

// HandleToolCall checks a tools/call. It returns (true, response) when the
// call must not reach the server; the response goes back to the client.
// Calls that cannot be parsed or checked are forwarded.
func (h *MessageHandler) HandleToolCall(frame []byte) (bool, []byte) {
	log := h.logger()
	tc, err := DecodeToolCall(frame)
	if err != nil {
		log.Warn("failed to extract tool call, forwarding", zap.Error(err))
		return false, nil
	}

	call := h.callFor(tc)
	event := logger.AuditEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Tool:       tc.Name,
		SessionKey: call.SessionKey,
		RunID:      call.RunID,
		Args:       tc.Arguments,
	}

	decision, err := h.Limiter.Check(call)
	var runaway *ratelimit.RunawayLoopError
	switch {
	case errors.As(err, &runaway):
		event.Decision = logger.DecisionRunaway
		event.Code = runaway.Code
		event.Error = runaway.Error()
		h.audit(event)
		log.Warn("runaway loop detected", zap.String("tool", tc.Name), zap.String("code", runaway.Code), zap.String("run", runaway.RunID))
		return h.respond(ErrorFrame(tc.ID, RPCRunawayLoop, runaway.Error()))

	case err != nil:
		event.Decision = logger.DecisionError
		event.Error = err.Error()
		h.audit(event)
		log.Warn("tool call not checked, forwarding", zap.String("tool", tc.Name), zap.Error(err))
		return false, nil

	case !decision.Allowed:
		event.Decision = logger.DecisionBlock
		event.Code = decision.Blocked.Error
		event.Message = decision.Blocked.Message
		h.audit(event)
		log.Info("tool call blocked", zap.String("tool", tc.Name), zap.String("code", decision.Blocked.Error), zap.String("session", call.SessionKey))

		body, err := json.Marshal(decision.Blocked)
		if err != nil {
			log.Error("failed to encode blocked result", zap.Error(err))
			return false, nil
		}
		return h.respond(ToolResultFrame(tc.ID, string(body)))
	}

	event.Decision = logger.DecisionAllow
	h.audit(event)
	return false, nil
}

func (h *MessageHandler) callFor(tc *ToolCall) ratelimit.Call {
	tool := tc.Name
	if alias, ok := h.Aliases[tool]; ok {
		tool = alias
	}
	call := ratelimit.Call{
		Tool:       tool,
		SessionKey: h.Session,
		RunID:      h.RunID,
		Args:       tc.Arguments,
	}
	if s, ok := normalize.StringArg(tc.Arguments, "sessionKey"); ok && s != "" {
		call.SessionKey = s
	}
	if m := tc.Meta; m != nil {
		if m.SessionKey != "" {
			call.SessionKey = m.SessionKey
		}
		if m.SessionID != "" {
			call.RunID = m.SessionID
		} else if m.RunID != "" {
			call.RunID = m.RunID
		}
	}
	return call
}

func (h *MessageHandler) respond(resp []byte, err error) (bool, []byte) {
	if err != nil {
		h.logger().Error("failed to build response", zap.Error(err))
		return false, nil
	}
	return true, resp
}

func (h *MessageHandler) audit(event logger.AuditEvent) {
	if h.OnAudit != nil {
		h.OnAudit(event)
	}
}

func (h *MessageHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
