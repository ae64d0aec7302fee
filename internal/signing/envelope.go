// Package signing implements the signed-request envelope of spec.md §4.F:
// freshness and replay defense layered on top of mTLS. A Signer produces
// envelopes using an internal/hsm.SigningCore; a Verifier checks timestamp
// skew, nonce replay and the signature before a request is trusted.
package signing

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"strconv"
	"strings"
)

// SignedRequest is the wire envelope described in spec.md §6.
type SignedRequest struct {
	ShardID      string      `json:"shard_id"`
	Operation    string      `json:"operation"`
	Path         string      `json:"path"`
	Body         interface{} `json:"body,omitempty"`
	TimestampMs  int64       `json:"timestamp_ms"`
	Nonce        uint64      `json:"nonce"`
	SignatureB64 string      `json:"signature_b64"`
	CertSerial   string      `json:"cert_serial"`
}

// canonicalString builds the pipe-joined signing string from spec.md §3/§6:
// shard_id|operation|path|body_json|timestamp_ms|nonce.
func canonicalString(shardID, operation, path, bodyJSON string, timestampMs int64, nonce uint64) string {
	return strings.Join([]string{
		shardID,
		operation,
		path,
		bodyJSON,
		strconv.FormatInt(timestampMs, 10),
		strconv.FormatUint(nonce, 10),
	}, "|")
}

// bodyJSON returns the compact JSON encoding of body, or "" when body is nil.
func bodyJSON(body interface{}) (string, error) {
	if body == nil {
		return "", nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// randomNonce draws a cryptographically random 64-bit nonce.
func randomNonce() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
