package types

// BridgeStatus is the terminal status of one bridge round trip
type BridgeStatus string

const (
	StatusSuccess BridgeStatus = "success"
	StatusError   BridgeStatus = "error"
)

// BridgeRequest is one inbound command from bundle code
type BridgeRequest struct {
	ID     string                 `json:"id"`
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"param,omitempty"`
}

// BridgeResponse answers exactly one BridgeRequest
type BridgeResponse struct {
	ID      string       `json:"id"`
	Status  BridgeStatus `json:"status"`
	Payload interface{}  `json:"payload,omitempty"`
}

// BridgeErrorType names the failure reported to bundle code
type BridgeErrorType string

const (
	BridgeErrUnexpectedFormat      BridgeErrorType = "unexpectedMessageFormat"
	BridgeErrPermissionDenied      BridgeErrorType = "permissionDenied"
	BridgeErrPermissionUnavailable BridgeErrorType = "permissionNotAvailable"
	BridgeErrAudienceNotSupported  BridgeErrorType = "audienceNotSupported"
	BridgeErrScopesNotSupported    BridgeErrorType = "scopesNotSupported"
	BridgeErrHost                  BridgeErrorType = "hostError"
	BridgeErrUnknown               BridgeErrorType = "unknown"
)

// BridgeError is the payload of an error response
type BridgeError struct {
	Type    BridgeErrorType `json:"type"`
	Message string          `json:"message,omitempty"`
}
