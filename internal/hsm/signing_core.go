// Package hsm implements the signing core described in spec.md §4.E: a
// PKCS#11-backed signer with a lock-free session pool, and a deterministic
// fallback mode when no real token is available. The fallback exists so the
// rest of the platform (signed-request envelopes, tests, local dev) keeps
// working without hardware; it is not a cryptographic substitute and is
// reported visibly via TokenInfo so callers can refuse it in production.
package hsm

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/miekg/pkcs11"

	"github.com/themis-db/shardcore/internal/logging"
	"github.com/themis-db/shardcore/internal/metrics"
	"github.com/themis-db/shardcore/internal/shardcoreerr"
)

var log = logging.MustGetLogger("hsm")

const fallbackPrefix = "hex:"

// sha256DigestInfoPrefix is the DER encoding of the PKCS#1 DigestInfo
// AlgorithmIdentifier for id-sha256, prepended to a raw digest before a raw
// RSA PKCS#1v1.5 signing mechanism. Mirrors SHA256_DER_PREFIX in
// hsm_provider_pkcs11.cpp.
var sha256DigestInfoPrefix = []byte{
	0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20,
}

// makeDigestInfo wraps a raw SHA-256 digest in a PKCS#1 DigestInfo structure,
// as required by the raw CKM_RSA_PKCS mechanism (the HSM does not know to
// hash-prefix the data itself the way CKM_SHA256_RSA_PKCS does).
func makeDigestInfo(digest []byte) []byte {
	out := make([]byte, 0, len(sha256DigestInfoPrefix)+len(digest))
	out = append(out, sha256DigestInfoPrefix...)
	out = append(out, digest...)
	return out
}

// signingMechanism picks the PKCS#11 mechanism and signing input for a
// precomputed SHA-256 digest, per spec.md §4.E / hsm_provider_pkcs11.cpp's
// useCombined split: a configured algorithm naming SHA-256 uses the combined
// hash-and-sign mechanism (fed the digest directly, matching the original),
// anything else falls back to raw RSA over a hand-built DigestInfo.
func (c *SigningCore) signingMechanism(digest []byte) (uint, []byte) {
	if strings.Contains(string(c.cfg.resolveAlgorithm()), "SHA256") {
		return pkcs11.CKM_SHA256_RSA_PKCS, digest
	}
	return pkcs11.CKM_RSA_PKCS, makeDigestInfo(digest)
}

// SignResult is the outcome of a Sign or SignHash call.
type SignResult struct {
	SignatureB64 string
	Algorithm    Algorithm
	KeyLabel     string
	Fallback     bool
}

// Stats are the core's lock-free sign/verify counters and error counters.
// Cumulative latency, round-robin hits and pool size are not tracked.
type Stats struct {
	SignCount   uint64
	SignErrors  uint64
	VerifyCount uint64
	VerifyErrors uint64
}

// SigningCore is the signing facade used by internal/signing. It is safe for
// concurrent use.
type SigningCore struct {
	cfg  Config
	mod  module
	pool *sessionPool

	mu        sync.RWMutex
	ready     bool
	fallback  bool
	lastError string

	signCount    uint64
	signErrors   uint64
	verifyCount  uint64
	verifyErrors uint64
}

// NewSigningCore constructs an uninitialized core; call Initialize before use.
func NewSigningCore(cfg Config) *SigningCore {
	return &SigningCore{cfg: cfg}
}

// Initialize attempts to open the configured PKCS#11 library and a pool of
// logged-in sessions bound to the configured key. Any failure along that
// path — missing library, no slot, bad PIN, missing key — drops the core
// into fallback mode rather than returning an error: per spec.md §4.E
// Initialize always reports success so the platform can boot without
// hardware, but IsReady/TokenInfo must surface which mode is active.
func (c *SigningCore) Initialize() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	mod, err := c.initModule()
	if err != nil {
		c.enterFallbackLocked(err)
		return true
	}

	sessions, err := c.openSessionsLocked(mod)
	if err != nil {
		mod.Finalize()
		c.enterFallbackLocked(err)
		return true
	}

	c.mod = mod
	c.pool = newSessionPool(sessions)
	c.fallback = false
	c.ready = true
	c.lastError = ""
	return true
}

func (c *SigningCore) initModule() (module, error) {
	if c.cfg.LibraryPath == "" {
		return nil, shardcoreerr.New(shardcoreerr.KindCrypto, shardcoreerr.ReasonDeviceError, "empty library_path")
	}
	mod, err := loadModule(c.cfg.LibraryPath)
	if err != nil {
		return nil, err
	}
	if err := mod.Initialize(); err != nil {
		return nil, shardcoreerr.Wrap(err, shardcoreerr.KindCrypto, shardcoreerr.ReasonDeviceError, "C_Initialize")
	}
	return mod, nil
}

func (c *SigningCore) openSessionsLocked(mod module) ([]*session, error) {
	slots, err := mod.GetSlotList(true)
	if err != nil || len(slots) == 0 {
		return nil, shardcoreerr.Wrap(err, shardcoreerr.KindCrypto, shardcoreerr.ReasonDeviceError, "no slots present")
	}
	slotID := slots[0]
	for _, s := range slots {
		if uint32(s) == c.cfg.SlotID {
			slotID = s
		}
	}

	poolSize := int(c.cfg.ResolveSessionPoolSize())
	pin := c.cfg.ResolvePIN()
	keyLabel := c.cfg.resolveKeyLabel("")

	sessions := make([]*session, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		sh, err := mod.OpenSession(slotID, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
		if err != nil {
			return nil, shardcoreerr.Wrap(err, shardcoreerr.KindCrypto, shardcoreerr.ReasonDeviceError, "OpenSession")
		}
		if err := mod.Login(sh, pkcs11.CKU_USER, pin); err != nil {
			return nil, shardcoreerr.Wrap(err, shardcoreerr.KindCrypto, shardcoreerr.ReasonPinIncorrect, "Login")
		}

		s := &session{handle: sh}
		if privs, err := mod.FindObjects(sh, pkcs11.CKO_PRIVATE_KEY, keyLabel); err == nil && len(privs) > 0 {
			s.privKey = privs[0]
		}
		if pubs, err := mod.FindObjects(sh, pkcs11.CKO_PUBLIC_KEY, keyLabel); err == nil && len(pubs) > 0 {
			s.pubKey = pubs[0]
		}
		if certs, err := mod.FindObjects(sh, pkcs11.CKO_CERTIFICATE, keyLabel); err == nil && len(certs) > 0 {
			s.certHandle = certs[0]
			if serial, err := mod.GetCertificateSerial(sh, certs[0]); err == nil {
				s.certSerial = serial
			}
		}
		s.ready = true
		sessions = append(sessions, s)
	}
	for _, s := range sessions {
		if s.privKey != 0 {
			return sessions, nil
		}
	}
	return nil, shardcoreerr.New(shardcoreerr.KindCrypto, shardcoreerr.ReasonDeviceError, "private key not found: "+keyLabel)
}

func (c *SigningCore) enterFallbackLocked(cause error) {
	log.Warnf("hsm: entering fallback signing mode: %v", cause)
	c.fallback = true
	c.ready = true
	if cause != nil {
		c.lastError = cause.Error()
	}
}

// Finalize releases any open PKCS#11 resources. Safe to call in fallback mode.
func (c *SigningCore) Finalize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mod == nil {
		c.ready = false
		return nil
	}
	for _, s := range c.pool.all() {
		c.mod.CloseSession(s.handle)
	}
	err := c.mod.Finalize()
	c.ready = false
	c.mod = nil
	c.pool = nil
	return err
}

// IsReady reports whether the core can sign/verify, in either mode.
func (c *SigningCore) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// GetLastError returns the most recent initialization/operation error text.
func (c *SigningCore) GetLastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// TokenInfo surfaces which mode is active. Per spec.md §4.E this must
// contain the substring "fallback" whenever real hardware isn't in use.
func (c *SigningCore) TokenInfo() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fallback || !c.ready {
		return fmt.Sprintf("fallback (lastError=%q)", c.lastError)
	}
	return fmt.Sprintf("pkcs11:slot=%d:keyLabel=%s:pool=%d", c.cfg.SlotID, c.cfg.resolveKeyLabel(""), c.pool.size())
}

// CertSerial returns the certificate serial cached from the first session
// that discovered one, per spec.md §4.E ("a certificate serial cached once
// on first discovery is reused as the sender identity"). Empty in fallback
// mode.
func (c *SigningCore) CertSerial() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fallback || c.pool == nil {
		return ""
	}
	for _, s := range c.pool.all() {
		if s.certSerial != "" {
			return s.certSerial
		}
	}
	return ""
}

// ListKeys returns the configured key label when ready, matching the single
// fixed signing key spec.md assumes per shard.
func (c *SigningCore) ListKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return nil
	}
	return []string{c.cfg.resolveKeyLabel("")}
}

// Sign signs data, hashing it internally. In fallback mode it returns a
// deterministic, non-cryptographic digest so callers and tests keep working
// without hardware (spec.md §8 scenario S4).
func (c *SigningCore) Sign(data []byte) (SignResult, error) {
	c.mu.RLock()
	fallback := c.fallback
	ready := c.ready
	c.mu.RUnlock()

	if !ready {
		atomic.AddUint64(&c.signErrors, 1)
		return SignResult{}, shardcoreerr.New(shardcoreerr.KindCrypto, shardcoreerr.ReasonDeviceError, "signing core not initialized")
	}
	if fallback {
		atomic.AddUint64(&c.signCount, 1)
		metrics.HSMSignTotal.WithLabelValues("fallback").Inc()
		return SignResult{
			SignatureB64: fallbackSignature(data),
			Algorithm:    c.cfg.resolveAlgorithm(),
			KeyLabel:     c.cfg.resolveKeyLabel(""),
			Fallback:     true,
		}, nil
	}

	digest := sha256.Sum256(data)
	return c.signDigest(digest[:])
}

// signDigest signs a precomputed SHA-256 digest against an already-acquired
// ready session, branching on the configured algorithm via signingMechanism.
// Shared by Sign (which hashes data first) and SignHash (which is handed the
// digest already).
func (c *SigningCore) signDigest(digest []byte) (SignResult, error) {
	s := c.pool.acquire()
	if s == nil || s.privKey == 0 {
		atomic.AddUint64(&c.signErrors, 1)
		metrics.HSMSignErrors.Inc()
		return SignResult{}, shardcoreerr.New(shardcoreerr.KindCrypto, shardcoreerr.ReasonDeviceError, "no ready session")
	}

	mechanism, input := c.signingMechanism(digest)
	sig, err := c.mod.Sign(s.handle, mechanism, s.privKey, input)
	if err != nil {
		atomic.AddUint64(&c.signErrors, 1)
		metrics.HSMSignErrors.Inc()
		return SignResult{}, shardcoreerr.Wrap(err, shardcoreerr.KindCrypto, shardcoreerr.ReasonCryptoOther, "C_Sign")
	}
	atomic.AddUint64(&c.signCount, 1)
	metrics.HSMSignTotal.WithLabelValues("real").Inc()
	return SignResult{
		SignatureB64: base64.StdEncoding.EncodeToString(sig),
		Algorithm:    c.cfg.resolveAlgorithm(),
		KeyLabel:     c.cfg.resolveKeyLabel(""),
	}, nil
}

// SignHash signs a precomputed SHA-256 digest through the same mechanism
// choice as Sign (see signingMechanism): under RSA-SHA256 the digest is fed
// to the combined hash-and-sign mechanism, which hashes it once more; other
// algorithms sign it wrapped in a DigestInfo under raw RSA.
func (c *SigningCore) SignHash(hash []byte) (SignResult, error) {
	c.mu.RLock()
	fallback := c.fallback
	ready := c.ready
	c.mu.RUnlock()

	if !ready {
		atomic.AddUint64(&c.signErrors, 1)
		return SignResult{}, shardcoreerr.New(shardcoreerr.KindCrypto, shardcoreerr.ReasonDeviceError, "signing core not initialized")
	}
	if fallback {
		atomic.AddUint64(&c.signCount, 1)
		metrics.HSMSignTotal.WithLabelValues("fallback").Inc()
		return SignResult{
			SignatureB64: fallbackSignature(hash),
			Algorithm:    c.cfg.resolveAlgorithm(),
			KeyLabel:     c.cfg.resolveKeyLabel(""),
			Fallback:     true,
		}, nil
	}

	return c.signDigest(hash)
}

// Verify checks a signature produced by Sign. In fallback mode this is
// equality against the same deterministic digest, not a real signature
// check — acceptable only because fallback signatures are themselves not
// cryptographic.
func (c *SigningCore) Verify(data []byte, signatureB64 string) (bool, error) {
	c.mu.RLock()
	fallback := c.fallback
	ready := c.ready
	c.mu.RUnlock()

	if !ready {
		atomic.AddUint64(&c.verifyErrors, 1)
		return false, shardcoreerr.New(shardcoreerr.KindCrypto, shardcoreerr.ReasonDeviceError, "signing core not initialized")
	}

	atomic.AddUint64(&c.verifyCount, 1)

	if fallback {
		metrics.HSMVerifyTotal.WithLabelValues("fallback").Inc()
		return fallbackSignature(data) == signatureB64, nil
	}
	metrics.HSMVerifyTotal.WithLabelValues("real").Inc()

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		atomic.AddUint64(&c.verifyErrors, 1)
		metrics.HSMVerifyErrors.Inc()
		return false, shardcoreerr.Wrap(err, shardcoreerr.KindCrypto, shardcoreerr.ReasonSignatureBad, "base64 decode")
	}

	s := c.pool.acquire()
	if s == nil || s.pubKey == 0 {
		atomic.AddUint64(&c.verifyErrors, 1)
		metrics.HSMVerifyErrors.Inc()
		return false, shardcoreerr.New(shardcoreerr.KindCrypto, shardcoreerr.ReasonDeviceError, "no ready session")
	}

	digest := sha256.Sum256(data)
	mechanism, input := c.signingMechanism(digest[:])
	if err := c.mod.Verify(s.handle, mechanism, s.pubKey, input, sig); err != nil {
		return false, nil
	}
	return true, nil
}

func fallbackSignature(data []byte) string {
	sum := sha256.Sum256(data)
	return fallbackPrefix + hex.EncodeToString(sum[:])
}

// GetStats returns a point-in-time snapshot of the lock-free counters.
func (c *SigningCore) GetStats() Stats {
	return Stats{
		SignCount:    atomic.LoadUint64(&c.signCount),
		SignErrors:   atomic.LoadUint64(&c.signErrors),
		VerifyCount:  atomic.LoadUint64(&c.verifyCount),
		VerifyErrors: atomic.LoadUint64(&c.verifyErrors),
	}
}

// ResetStats zeroes the counters, e.g. between test cases.
func (c *SigningCore) ResetStats() {
	atomic.StoreUint64(&c.signCount, 0)
	atomic.StoreUint64(&c.signErrors, 0)
	atomic.StoreUint64(&c.verifyCount, 0)
	atomic.StoreUint64(&c.verifyErrors, 0)
}
