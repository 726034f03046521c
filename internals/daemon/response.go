// Copyright (c) 2024 Big Cove Technologies Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Big-Cove/nerves-zero-downtime/internals/logger"
)

type ResponseType string

const (
	ResponseTypeSync  ResponseType = "sync"
	ResponseTypeError ResponseType = "error"
)

// Response knows how to serve itself.
type Response interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

type resp struct {
	Status int          `json:"status-code"`
	Type   ResponseType `json:"type"`
	Result interface{}  `json:"result,omitempty"`
}

type respJSON struct {
	Type       ResponseType `json:"type"`
	Status     int          `json:"status-code"`
	StatusText string       `json:"status,omitempty"`
	Result     interface{}  `json:"result,omitempty"`
}

func (r *resp) MarshalJSON() ([]byte, error) {
	return json.Marshal(respJSON{
		Type:       r.Type,
		Status:     r.Status,
		StatusText: http.StatusText(r.Status),
		Result:     r.Result,
	})
}

func (r *resp) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	status := r.Status
	bs, err := r.MarshalJSON()
	if err != nil {
		logger.Noticef("Cannot marshal %#v to JSON: %v", *r, err)
		bs = nil
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(bs)
}

type errorResult struct {
	Message string `json:"message"` // note no omitempty
}

func SyncResponse(result interface{}) Response {
	if err, ok := result.(error); ok {
		return InternalError("internal error: %v", err)
	}
	if rsp, ok := result.(Response); ok {
		return rsp
	}
	return &resp{
		Type:   ResponseTypeSync,
		Status: http.StatusOK,
		Result: result,
	}
}

// ErrorResponse builds an error Response with the status and formatted
// message.
//
// If no arguments are provided, formatting is disabled, and the format
// string is used as is and not interpreted in any way.
func ErrorResponse(status int, format string, v ...interface{}) Response {
	res := &errorResult{}
	if len(v) == 0 {
		res.Message = format
	} else {
		res.Message = fmt.Sprintf(format, v...)
	}
	return &resp{
		Type:   ResponseTypeError,
		Result: res,
		Status: status,
	}
}

func makeErrorResponder(status int) errorResponder {
	return func(format string, v ...interface{}) Response {
		return ErrorResponse(status, format, v...)
	}
}

// errorResponder is a callable that produces an error Response.
// e.g., InternalError("something broke: %v", err), etc.
type errorResponder func(string, ...interface{}) Response

// Standard error responses.
var (
	BadRequest       = makeErrorResponder(http.StatusBadRequest)
	NotFound         = makeErrorResponder(http.StatusNotFound)
	MethodNotAllowed = makeErrorResponder(http.StatusMethodNotAllowed)
	Conflict         = makeErrorResponder(http.StatusConflict)
	InternalError    = makeErrorResponder(http.StatusInternalServerError)
)
