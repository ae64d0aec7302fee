package signing

import (
	"time"

	"github.com/themis-db/shardcore/internal/hsm"
	"github.com/themis-db/shardcore/internal/shardcoreerr"
)

// signingCore is the slice of *hsm.SigningCore the signer needs; narrowing
// it to an interface keeps tests free of a real/fallback HSM wiring choice.
type signingCore interface {
	Sign(data []byte) (hsm.SignResult, error)
	CertSerial() string
}

// Signer creates signed requests on behalf of one shard.
type Signer struct {
	shardID string
	core    signingCore
}

// NewSigner builds a Signer for shardID backed by core.
func NewSigner(shardID string, core signingCore) *Signer {
	return &Signer{shardID: shardID, core: core}
}

// CreateSignedRequest fills and signs an envelope per spec.md §4.F.
func (s *Signer) CreateSignedRequest(method, path string, body interface{}) (SignedRequest, error) {
	bj, err := bodyJSON(body)
	if err != nil {
		return SignedRequest{}, shardcoreerr.Wrap(err, shardcoreerr.KindParse, shardcoreerr.ReasonArgumentsBad, "body marshal")
	}

	nonce, err := randomNonce()
	if err != nil {
		return SignedRequest{}, shardcoreerr.Wrap(err, shardcoreerr.KindCrypto, shardcoreerr.ReasonGeneralError, "nonce generation")
	}

	timestampMs := time.Now().UnixMilli()
	canonical := canonicalString(s.shardID, method, path, bj, timestampMs, nonce)

	result, err := s.core.Sign([]byte(canonical))
	if err != nil {
		return SignedRequest{}, shardcoreerr.Wrap(err, shardcoreerr.KindCrypto, shardcoreerr.ReasonCryptoOther, "sign envelope")
	}

	return SignedRequest{
		ShardID:      s.shardID,
		Operation:    method,
		Path:         path,
		Body:         body,
		TimestampMs:  timestampMs,
		Nonce:        nonce,
		SignatureB64: result.SignatureB64,
		CertSerial:   s.core.CertSerial(),
	}, nil
}
