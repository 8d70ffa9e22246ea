package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"duit/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}

// writeResult renders a service Result, mapping its failure code to an
// HTTP status.
func writeResult(w http.ResponseWriter, res core.Result, payload any) {
	if res.Success {
		body := map[string]any{
			"success": true,
			"message": res.Message,
		}
		if payload != nil {
			body["data"] = payload
		}
		writeJSON(w, http.StatusOK, body)
		return
	}
	writeJSON(w, statusForCode(res.Code), res)
}

func statusForCode(code core.FailureCode) int {
	switch code {
	case core.FailNotFound:
		return http.StatusNotFound
	case core.FailAlreadyMember:
		return http.StatusConflict
	case core.FailNotAuthorized:
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}

// decodeBody parses a JSON request body into v. Unknown fields are
// rejected so client typos surface as 400s instead of silent zero values.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// amountField accepts an amount either as a bare integer or as a
// formatted Rupiah string ("50.000").
type amountField struct {
	Units int64
}

func (a *amountField) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := core.ParseRupiah(s)
		if err != nil {
			return err
		}
		a.Units = v
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	a.Units = v
	return nil
}

func (a amountField) Money() core.Money {
	return core.Money{Units: a.Units}
}
