package whatsapp_sender

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidArgument is returned before any request is made when a call's
// arguments cannot produce a valid message.
var ErrInvalidArgument = errors.New("invalid argument")

// APIError is a rejection reported by the Graph API.
type APIError struct {
	Status    int
	Code      int
	Subcode   int
	Type      string
	Message   string
	Details   string
	FBTraceID string
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if msg == "" {
		msg = "no error message"
	}
	return fmt.Sprintf("whatsapp API error %d (code %d): %s", e.Status, e.Code, msg)
}

// TransportError is a failure to reach the Graph API or read its reply.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("whatsapp %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type errorEnvelope struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
		ErrorData    struct {
			Details string `json:"details"`
		} `json:"error_data"`
	} `json:"error"`
}

// parseAPIError builds an APIError from a non-2xx response body. Bodies
// that are not the Graph error envelope keep their raw text as Message.
func parseAPIError(status int, body io.Reader) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	apiErr := &APIError{Status: status}

	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || (env.Error.Message == "" && env.Error.Code == 0) {
		apiErr.Message = string(raw)
		return apiErr
	}
	apiErr.Code = env.Error.Code
	apiErr.Subcode = env.Error.ErrorSubcode
	apiErr.Type = env.Error.Type
	apiErr.Message = env.Error.Message
	apiErr.Details = env.Error.ErrorData.Details
	apiErr.FBTraceID = env.Error.FBTraceID
	return apiErr
}
