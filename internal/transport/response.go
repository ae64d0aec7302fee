package transport

import "encoding/json"

// Response is the outcome of one MTLSClient call, per spec.md §4.G.
type Response struct {
	StatusCode      int
	StatusMessage   string
	Body            json.RawMessage
	RawBody         []byte
	Success         bool
	Err             error
	ExecutionTimeMs int64
}

// DecodeBody unmarshals Body into v.
func (r Response) DecodeBody(v interface{}) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}
