// Package shardcoreerr defines the error taxonomy shared by every layer of the
// shard core: parsing, ring, topology, crypto, TLS, network and routing
// failures all resolve to one of the kinds below so callers can branch on
// Kind() instead of string-matching error text.
package shardcoreerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which taxonomy an error belongs to.
type Kind string

const (
	KindParse    Kind = "parse"
	KindRing     Kind = "ring"
	KindTopology Kind = "topology"
	KindCrypto   Kind = "crypto"
	KindTLS      Kind = "tls"
	KindNetwork  Kind = "network"
	KindReplay   Kind = "replay"
	KindRouting  Kind = "routing"
)

// Reason is the specific sub-case within a Kind, e.g. UuidInvalid within
// KindParse or NonceSeen within KindReplay.
type Reason string

const (
	ReasonUrnInvalid   Reason = "urn_invalid"
	ReasonUuidInvalid  Reason = "uuid_invalid"
	ReasonModelInvalid Reason = "model_invalid"
	ReasonCertInvalid  Reason = "cert_invalid"

	ReasonRingEmpty Reason = "ring_empty"

	ReasonTopologyMiss Reason = "topology_miss"

	ReasonPinIncorrect    Reason = "pin_incorrect"
	ReasonDeviceError     Reason = "device_error"
	ReasonGeneralError    Reason = "general_error"
	ReasonArgumentsBad    Reason = "arguments_bad"
	ReasonSignatureBad    Reason = "signature_invalid"
	ReasonFallbackInUse   Reason = "fallback_in_use"
	ReasonCryptoOther     Reason = "other"

	ReasonHandshakeFailed Reason = "handshake_failed"
	ReasonPeerUntrusted   Reason = "peer_untrusted"
	ReasonHostname        Reason = "hostname"
	ReasonClosed          Reason = "closed"

	ReasonConnect Reason = "connect"
	ReasonRead    Reason = "read"
	ReasonWrite   Reason = "write"
	ReasonTimeout Reason = "timeout"

	ReasonNonceSeen           Reason = "nonce_seen"
	ReasonTimestampOutOfWindow Reason = "timestamp_out_of_window"
	ReasonShardMismatch       Reason = "shard_mismatch"

	ReasonLocalHandlerMissing Reason = "local_handler_missing"
	ReasonScatterTimeout      Reason = "scatter_timeout"
	ReasonPartialFailure      Reason = "partial_failure"
)

// Error is the concrete error type carried through the stack. Use As/Is to
// test for it, or Kind/Reason accessors after a failed type assertion.
type Error struct {
	kind    Kind
	reason  Reason
	subject string // e.g. shard id, urn string — whatever identifies the offending entity
	cause   error
}

func New(kind Kind, reason Reason, subject string) *Error {
	return &Error{kind: kind, reason: reason, subject: subject}
}

func Wrap(cause error, kind Kind, reason Reason, subject string) *Error {
	return &Error{kind: kind, reason: reason, subject: subject, cause: cause}
}

func (e *Error) Error() string {
	if e.subject != "" {
		return fmt.Sprintf("%s/%s: %s", e.kind, e.reason, e.subject)
	}
	return fmt.Sprintf("%s/%s", e.kind, e.reason)
}

func (e *Error) Unwrap() error { return e.cause }
func (e *Error) Kind() Kind     { return e.kind }
func (e *Error) Reason() Reason { return e.reason }
func (e *Error) Subject() string { return e.subject }

// Retryable reports whether the layer that owns this error class ever
// retries it. Per spec.md §7 only NetworkError is retried, and only inside
// the MTLS transport layer.
func (e *Error) Retryable() bool {
	return e.kind == KindNetwork
}

// Is implements errors.Is support purely on kind+reason, ignoring subject and
// cause so callers can do errors.Is(err, shardcoreerr.New(KindReplay, ReasonNonceSeen, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind && e.reason == t.reason
}

// Wrapf decorates err with additional context while preserving the original
// cause chain, mirroring the teacher's github.com/pkg/errors.Wrapf usage at
// component boundaries.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
