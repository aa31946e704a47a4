// Package mcp puts the tool-call rate limiter in front of a Model Context
// Protocol server. It reads JSON-RPC frames between an agent and the
// server, checks every tools/call, and answers blocked calls itself.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

const MethodToolsCall = "tools/call"

// RPCRunawayLoop is the error code sent when a read pattern trips the
// runaway detector. It lies in the implementation-defined server range.
const RPCRunawayLoop = -32001

// Kind classifies a frame by its id and method members.
type Kind int

const (
	KindUnknown Kind = iota
	KindToolCall
	KindNotification
	KindResponse
	KindRequest
)

func (k Kind) String() string {
	switch k {
	case KindToolCall:
		return "tools/call"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	case KindRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Classify peeks at a raw frame without decoding it. Anything that is not
// a JSON object, and an object with neither id nor method, is KindUnknown.
// A null id counts as absent.
func Classify(frame []byte) Kind {
	if !gjson.ValidBytes(frame) {
		return KindUnknown
	}
	res := gjson.GetManyBytes(frame, "id", "method")
	hasID := res[0].Exists() && res[0].Type != gjson.Null
	method := ""
	if res[1].Type == gjson.String {
		method = res[1].Str
	}

	switch {
	case hasID && method == MethodToolsCall:
		return KindToolCall
	case hasID && method != "":
		return KindRequest
	case hasID:
		return KindResponse
	case method != "":
		return KindNotification
	}
	return KindUnknown
}

// CallMeta carries the caller identity hosts attach to a tool call.
type CallMeta struct {
	SessionKey string `json:"sessionKey,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	RunID      string `json:"runId,omitempty"`
}

// ToolCall is a decoded tools/call request.
type ToolCall struct {
	ID        json.RawMessage
	Name      string
	Arguments map[string]any
	Meta      *CallMeta
}

var errNotToolCall = errors.New("not a tools/call request")

// DecodeToolCall decodes a tools/call frame.
func DecodeToolCall(frame []byte) (*ToolCall, error) {
	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params *struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
			Meta      *CallMeta      `json:"_meta"`
		} `json:"params"`
	}
	if err := json.Unmarshal(frame, &req); err != nil {
		return nil, fmt.Errorf("invalid tools/call frame: %w", err)
	}
	if req.Method != MethodToolsCall {
		return nil, fmt.Errorf("%w: method=%q", errNotToolCall, req.Method)
	}
	if req.Params == nil {
		return nil, fmt.Errorf("tools/call request has no params")
	}
	if req.Params.Name == "" {
		return nil, fmt.Errorf("tools/call params missing required field 'name'")
	}
	return &ToolCall{
		ID:        req.ID,
		Name:      req.Params.Name,
		Arguments: req.Params.Arguments,
		Meta:      req.Params.Meta,
	}, nil
}

// Response is an outgoing JSON-RPC response frame.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  *ToolResult     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ToolResult is the result shape of a tools/call response.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolResultFrame answers a tools/call with a single text content item,
// the same shape a server returns for a successful call.
func ToolResultFrame(id json.RawMessage, text string) ([]byte, error) {
	return json.Marshal(Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  &ToolResult{Content: []Content{{Type: "text", Text: text}}},
	})
}

// ErrorFrame answers a request with a JSON-RPC error.
func ErrorFrame(id json.RawMessage, code int, message string) ([]byte, error) {
	return json.Marshal(Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}
