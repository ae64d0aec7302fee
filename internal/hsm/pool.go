package hsm

import (
	"sync/atomic"

	"github.com/miekg/pkcs11"
)

// session is one logged-in PKCS#11 session plus the object handles resolved
// for it at open time.
type session struct {
	handle     pkcs11.SessionHandle
	privKey    pkcs11.ObjectHandle
	pubKey     pkcs11.ObjectHandle
	certHandle pkcs11.ObjectHandle
	certSerial string
	ready      bool
}

// sessionPool hands out sessions round-robin via an atomic counter, per
// spec.md §4.E: "an atomic counter increments and maps modulo pool size; the
// first ready session at the resulting index is used, or, as fallback, the
// first ready session scanned linearly". No locks are taken on the hot path.
type sessionPool struct {
	sessions []*session
	counter  uint64
}

func newSessionPool(sessions []*session) *sessionPool {
	return &sessionPool{sessions: sessions}
}

func (p *sessionPool) size() int {
	return len(p.sessions)
}

// acquire returns the next session to use, or nil if none is ready.
func (p *sessionPool) acquire() *session {
	n := len(p.sessions)
	if n == 0 {
		return nil
	}
	idx := atomic.AddUint64(&p.counter, 1) % uint64(n)
	if s := p.sessions[idx]; s.ready {
		return s
	}
	for _, s := range p.sessions {
		if s.ready {
			return s
		}
	}
	return nil
}

func (p *sessionPool) all() []*session {
	return p.sessions
}
