// Package httpapi wires the Coordinator, UsageMeter, and Store behind
// the three routes spec §6 names: GET /api/articles, GET
// /api/articles/stats, and GET /health. Grounded on the teacher's
// gin.H-envelope handler style (internal/handlers), replacing its
// resource-specific envelopes with the single {success,data,error,meta}
// shape this spec requires.
package httpapi

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"gdelt-article-cache/internal/apierr"
)

// meta is the envelope's meta object; fields beyond request_id/timestamp
// are set per-endpoint via extra.
type meta struct {
	RequestID string                 `json:"request_id"`
	Timestamp string                 `json:"timestamp"`
	Extra     map[string]interface{} `json:"-"`
}

func newMeta(c *gin.Context) meta {
	requestID, _ := c.Get("request_id")
	id, _ := requestID.(string)
	return meta{RequestID: id, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// MarshalJSON flattens Extra alongside the fixed request_id/timestamp
// keys, mirroring articles.View's flattening of its opaque payload.
func (m meta) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["request_id"] = m.RequestID
	out["timestamp"] = m.Timestamp
	return json.Marshal(out)
}

type successEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   interface{} `json:"error"`
	Meta    meta        `json:"meta"`
}

type apiError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type errorEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   apiError    `json:"error"`
	Meta    meta        `json:"meta"`
}

func respondSuccess(c *gin.Context, data interface{}, extra map[string]interface{}) {
	m := newMeta(c)
	m.Extra = extra
	c.JSON(200, successEnvelope{Success: true, Data: data, Error: nil, Meta: m})
}

// respondError maps an error to the spec §7 envelope and HTTP status.
// Non-*apierr.Error values are treated as internal errors so a bug never
// leaks an unmapped status code.
func respondError(c *gin.Context, err error, extra map[string]interface{}) {
	e, ok := apierr.As(err)
	if !ok {
		e = apierr.Internal(err)
	}

	m := newMeta(c)
	m.Extra = extra
	c.JSON(e.Kind.Status(), errorEnvelope{
		Success: false,
		Data:    nil,
		Error:   apiError{Code: string(e.Kind), Message: e.Message, Details: e.Details},
		Meta:    m,
	})
}
