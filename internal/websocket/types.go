// internal/websocket/types.go
package websocket

// Message kinds
const (
	KindRequest  = "rpc_request"
	KindResponse = "rpc_response"
	KindEvent    = "event"
)

// RPCRequest is a call from the client
type RPCRequest struct {
	ID     string        `json:"id"`     // echoed in the response
	Method string        `json:"method"` // e.g. "versions.list"
	Params []interface{} `json:"params"` // positional
}

// RPCResponse answers an RPCRequest
type RPCResponse struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// WSEvent is pushed by the server unprompted
type WSEvent struct {
	Type    string      `json:"type"` // e.g. "project-version:created"
	Payload interface{} `json:"payload"`
}

// WSMessage wraps everything sent over the socket
type WSMessage struct {
	Kind string `json:"kind"`

	Request  *RPCRequest  `json:"request,omitempty"`
	Response *RPCResponse `json:"response,omitempty"`
	Event    *WSEvent     `json:"event,omitempty"`
}
