package protocol

import "encoding/json"

// Wire response codes carried in the envelope. Code 0 is success; the
// rest mirror their HTTP namesakes.
const (
	CodeOK             = 0
	CodeBadRequest     = 400
	CodeBadCredentials = 401
	CodeForbidden      = 403
	CodeNotFound       = 404
	CodeConflict       = 409
	CodeInternal       = 500
)

// Response is the canonical envelope: {"code": int, "message": string}
// plus an arbitrary payload merged into the same object.
type Response struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"-"`
}

// MarshalJSON flattens Data into the envelope object so clients see
// {"code":0,"message":"ok","ticket_id":"..."} rather than a nested
// data field.
func (r Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Data)+2)
	for k, v := range r.Data {
		out[k] = v
	}
	out["code"] = r.Code
	out["message"] = r.Message
	return json.Marshal(out)
}

// UnmarshalJSON splits the flat envelope back into code/message/Data.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["code"].(float64); ok {
		r.Code = int(v)
	}
	if v, ok := raw["message"].(string); ok {
		r.Message = v
	}
	delete(raw, "code")
	delete(raw, "message")
	if len(raw) > 0 {
		r.Data = raw
	}
	return nil
}

// OK reports whether the envelope carries a success code.
func (r Response) OK() bool {
	return r.Code == CodeOK
}
