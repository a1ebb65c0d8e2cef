package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

// Envelope wraps every response body.
type Envelope struct {
	Success    bool              `json:"success"`
	Data       any               `json:"data,omitempty"`
	Error      string            `json:"error,omitempty"`
	Message    string            `json:"message,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Pagination *types.Pagination `json:"pagination,omitempty"`
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, r, status, Envelope{Success: true, Data: data})
}

func writePage(w http.ResponseWriter, r *http.Request, res types.RecordPage) {
	recs := res.Records
	if recs == nil {
		recs = []types.Record{}
	}
	pg := res.Pagination
	writeEnvelope(w, r, http.StatusOK, Envelope{Success: true, Data: recs, Pagination: &pg})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string, details map[string]string) {
	writeEnvelope(w, r, status, Envelope{Error: code, Message: msg, Details: details})
}

// writeEnvelope encodes env as protobuf when the client asks for it and as
// JSON otherwise.
func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, env Envelope) {
	if wantsProtobuf(r) {
		msg, err := envelopeToProto(env)
		if err == nil {
			writeProto(w, status, msg)
			return
		}
	}
	writeJSON(w, status, env)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
