package apperr

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"jimgabang/utils"
)

type body struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Write serialises err as {"code","message","fields"} with the mapped status.
// The cause of an Internal error is never exposed to the caller.
func Write(w http.ResponseWriter, err error) {
	k := KindOf(err)
	b := body{Code: k.Code(), Message: "internal server error"}
	var e *Error
	if k != Internal && errors.As(err, &e) {
		b.Message = e.Message
		b.Fields = e.Fields
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(k.Status())
	_ = json.NewEncoder(w).Encode(b)
}

// Respond writes err and logs it when it is Internal. Client errors are
// not logged.
func Respond(log *zap.Logger, w http.ResponseWriter, r *http.Request, err error) {
	if KindOf(err) == Internal {
		log.Error("request failed",
			zap.String("request_id", utils.RequestID(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	Write(w, err)
}
