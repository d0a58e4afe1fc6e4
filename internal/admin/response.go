// Package admin implements the admin command surface's DTOs and
// dispatcher: a thin request/response layer the host (not the
// core) is expected to expose over whatever transport it chooses —
// internal/admin only owns the shapes and the wiring to the core
// subsystems. One struct holds every subsystem dependency, with a
// handler method per command and a uniform {ok,data} / {ok,error}
// envelope.
package admin

import "github.com/nugget/msghub/internal/hub"

// Response is the uniform envelope every admin command returns:
// {ok:true, data} on success, {ok:false, error:{code, message}} on
// failure.
type Response struct {
	OK    bool      `json:"ok"`
	Data  any       `json:"data,omitempty"`
	Error *ErrorDTO `json:"error,omitempty"`
}

// ErrorDTO is the wire shape of a *hub.Error.
type ErrorDTO struct {
	Code    hub.Code `json:"code"`
	Message string   `json:"message"`
}

func ok(data any) Response {
	return Response{OK: true, Data: data}
}

func fail(code hub.Code, message string) Response {
	return Response{OK: false, Error: &ErrorDTO{Code: code, Message: message}}
}

func failErr(err error) Response {
	if herr, ok := err.(*hub.Error); ok {
		return fail(herr.Code, herr.Message)
	}
	return fail(hub.CodeInternal, err.Error())
}
