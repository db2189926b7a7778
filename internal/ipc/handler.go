package ipc

import (
	"context"
)

// Controller is the daemon surface the control socket exposes.
type Controller interface {
	Status() (*StatusResponse, error)
	// SetEnabled applies enabled, or toggles when it is nil, and returns
	// the resulting state.
	SetEnabled(enabled *bool) (bool, error)
}

// NewControlHandler answers status and enable requests from ctrl.
func NewControlHandler(ctrl Controller) Handler {
	return HandlerFunc(func(_ context.Context, _ *Client, msg *Message) (*Message, error) {
		id := msg.Header.RequestID

		switch msg.Header.Type {
		case MsgStatusRequest:
			status, err := ctrl.Status()
			if err != nil {
				return NewErrorMessage(id, ErrNotRunning, err.Error()), nil
			}
			return NewResponse(MsgStatusResponse, id, status)

		case MsgSetEnabled:
			var req SetEnabledRequest
			if len(msg.Payload) > 0 {
				if err := Decode(msg.Payload, &req); err != nil {
					return NewErrorMessage(id, ErrInvalidRequest, "invalid set_enabled request"), nil
				}
			}
			enabled, err := ctrl.SetEnabled(req.Enabled)
			if err != nil {
				return NewErrorMessage(id, ErrInternalError, err.Error()), nil
			}
			return NewResponse(MsgSetEnabledResp, id, &SetEnabledResponse{Enabled: enabled})

		default:
			return NewErrorMessage(id, ErrInvalidRequest, "unsupported request "+msg.Header.Type.String()), nil
		}
	})
}
