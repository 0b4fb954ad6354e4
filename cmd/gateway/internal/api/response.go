package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Response codes carried in the envelope next to the HTTP status.
const (
	CodeOK                  = "OK"
	CodeCreated             = "CREATED"
	CodeDataExist           = "DATA_EXIST"
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotFound            = "DATA_NOT_FOUND"
	CodeInternalServerError = "INTERNAL_SERVER_ERROR"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeBadGateway          = "BAD_GATEWAY"
)

// Envelope is the body of every REST response.
type Envelope struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, code, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Status: status, Code: code, Message: message, Data: data})
}

// writeError logs err with the request id and sends an envelope without internal details for 5xx.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, status int, code, message string, err error) {
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("code", code),
		zap.Int("status", status),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if status >= http.StatusInternalServerError {
		logger.Error("API error response", fields...)
	} else {
		logger.Debug("API error response", fields...)
	}

	body := Envelope{Status: status, Code: code, Message: message}
	if err != nil && status < http.StatusInternalServerError {
		body.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
