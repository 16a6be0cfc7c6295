package handler

import (
	"errors"
	"strings"
	"time"

	"gowa-dispatch/internal/helper"
	"gowa-dispatch/internal/model"
	"gowa-dispatch/internal/service"
	"gowa-dispatch/internal/ws"

	"github.com/labstack/echo/v4"
)

type SessionHandler struct {
	Orch           *service.Orchestrator
	Realtime       ws.RealtimePublisher // may be nil
	PairingTimeout time.Duration
}

type startSessionRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type attachDispatchRequest struct {
	Target          string   `json:"target"`
	SenderLabel     string   `json:"senderLabel"`
	Messages        []string `json:"messages"`
	IntervalSeconds int      `json:"intervalSeconds"`
}

// POST /api/sessions
// Starts a session and waits a bounded time for the pairing outcome.
func (h *SessionHandler) StartSession(c echo.Context) error {
	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, 400, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return ErrorResponse(c, 400, "Field 'phoneNumber' is required", "PHONE_REQUIRED", "")
	}

	jid, err := helper.FormatPhoneNumber(req.PhoneNumber)
	if err != nil {
		return ErrorResponse(c, 400, "Invalid phone number", "INVALID_PHONE", err.Error())
	}
	phoneID := jid.User

	key, results, err := h.Orch.StartSession(phoneID)
	if err != nil {
		return ErrorResponse(c, 500, "Failed to create session", "CREATE_SESSION_FAILED", err.Error())
	}

	select {
	case res := <-results:
		switch {
		case res.Err != nil:
			return ErrorResponse(c, 502, "Pairing failed", "PAIRING_FAILED", res.Err.Error())
		case res.AlreadyConnected:
			return SuccessResponse(c, 200, "Session connected with stored credentials", map[string]interface{}{
				"sessionKey": key,
				"status":     "connected",
			})
		default:
			h.publishPairingCode(key, res.Code)
			return SuccessResponse(c, 200, "Pairing code generated", map[string]interface{}{
				"sessionKey":  key,
				"status":      "pairing_required",
				"pairingCode": res.Code,
				"nextStep":    "Enter the code on the phone: Linked Devices > Link with phone number",
			})
		}

	case <-time.After(h.PairingTimeout):
		// The session keeps connecting in the background. The one-shot
		// result still resolves later, so hand the channel off to a relay
		// that broadcasts the outcome on the websocket.
		go h.relayPairingResult(key, results)
		return SuccessResponse(c, 202, "Session is still connecting", map[string]interface{}{
			"sessionKey": key,
			"status":     "pending",
		})
	}
}

// GET /api/sessions
func (h *SessionHandler) ListSessions(c echo.Context) error {
	sessions := h.Orch.Sessions()
	return SuccessResponse(c, 200, "Sessions retrieved", map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// GET /api/sessions/:key
func (h *SessionHandler) GetStatus(c echo.Context) error {
	key := c.Param("key")

	info, err := h.Orch.SessionInfo(key)
	if err != nil {
		return ErrorResponse(c, 404, "Session not found", "SESSION_NOT_FOUND", "")
	}
	return SuccessResponse(c, 200, "Session status retrieved", info)
}

// POST /api/sessions/:key/dispatch
func (h *SessionHandler) AttachDispatch(c echo.Context) error {
	key := c.Param("key")

	var req attachDispatchRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, 400, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if strings.TrimSpace(req.Target) == "" {
		return ErrorResponse(c, 400, "Field 'target' is required", "TARGET_REQUIRED", "")
	}

	target, err := helper.NormalizeTarget(req.Target)
	if err != nil {
		return ErrorResponse(c, 400, "Invalid target", "INVALID_TARGET", err.Error())
	}

	err = h.Orch.AttachDispatch(key, target, req.SenderLabel, req.Messages, req.IntervalSeconds)
	switch {
	case errors.Is(err, service.ErrUnknownSession):
		return ErrorResponse(c, 404, "Session not found", "SESSION_NOT_FOUND", "")
	case errors.Is(err, service.ErrNotConnected):
		return ErrorResponse(c, 400, "Session is not connected", "NOT_CONNECTED", "Pair the session first, then attach dispatch")
	case errors.Is(err, service.ErrEmptyMessages):
		return ErrorResponse(c, 400, "Message list must not be empty", "EMPTY_MESSAGE_LIST", "")
	case errors.Is(err, service.ErrBadInterval):
		return ErrorResponse(c, 400, "Interval must be at least 1 second", "INVALID_INTERVAL", "")
	case err != nil:
		return ErrorResponse(c, 500, "Failed to attach dispatch", "ATTACH_FAILED", err.Error())
	}

	return SuccessResponse(c, 200, "Dispatch attached", map[string]interface{}{
		"sessionKey":      key,
		"target":          target,
		"messageCount":    len(req.Messages),
		"intervalSeconds": req.IntervalSeconds,
	})
}

// DELETE /api/sessions/:key
func (h *SessionHandler) StopSession(c echo.Context) error {
	key := c.Param("key")

	if err := h.Orch.StopSession(key); err != nil {
		return ErrorResponse(c, 404, "Session not found", "SESSION_NOT_FOUND", "")
	}
	return SuccessResponse(c, 200, "Session stopped and unlinked", map[string]interface{}{
		"sessionKey": key,
	})
}

// GET /api/sessions/:key/groups
func (h *SessionHandler) GetGroups(c echo.Context) error {
	key := c.Param("key")

	groups, err := h.Orch.QueryGroups(c.Request().Context(), key)
	switch {
	case errors.Is(err, service.ErrUnknownSession):
		return ErrorResponse(c, 404, "Session not found", "SESSION_NOT_FOUND", "")
	case errors.Is(err, service.ErrNotConnected):
		return ErrorResponse(c, 400, "Session is not connected", "NOT_CONNECTED", "")
	case err != nil:
		return ErrorResponse(c, 500, "Failed to fetch groups", "FETCH_GROUPS_FAILED", err.Error())
	}

	return SuccessResponse(c, 200, "Groups retrieved", map[string]interface{}{
		"count":  len(groups),
		"groups": groups,
	})
}

// relayPairingResult drains the one-shot result after the HTTP reply timed
// out. Codes and errors go out on the hub; an already-connected outcome is
// covered by the status broadcast from the supervisor.
func (h *SessionHandler) relayPairingResult(key string, results <-chan model.PairingResult) {
	res := <-results
	switch {
	case res.Err != nil:
		h.publishError(key, res.Err)
	case res.AlreadyConnected:
	default:
		h.publishPairingCode(key, res.Code)
	}
}

func (h *SessionHandler) publishError(key string, err error) {
	if h.Realtime == nil {
		return
	}
	h.Realtime.Publish(ws.WsEvent{
		Event:     ws.EventSessionError,
		Timestamp: time.Now().UTC(),
		Data: ws.SessionErrorData{
			SessionKey: key,
			Error:      err.Error(),
		},
	})
}

func (h *SessionHandler) publishPairingCode(key, code string) {
	if h.Realtime == nil {
		return
	}
	h.Realtime.Publish(ws.WsEvent{
		Event:     ws.EventPairingCode,
		Timestamp: time.Now().UTC(),
		Data: ws.PairingCodeData{
			SessionKey:  key,
			PairingCode: code,
		},
	})
}
