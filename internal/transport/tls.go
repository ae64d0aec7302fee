package transport

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/themis-db/shardcore/internal/shardcoreerr"
)

// buildTLSConfig assembles the client's tls.Config per spec.md §4.G:
// pinned minimum TLS version, client identity certificate (with optional
// passphrase-protected key), and CA trust for the peer.
func buildTLSConfig(cfg Config) (*tls.Config, error) {
	cert, err := loadClientCertificate(cfg.CertPath, cfg.KeyPath, cfg.KeyPassphrase)
	if err != nil {
		return nil, err
	}

	pool, err := loadCAPool(cfg.CACertPath)
	if err != nil {
		return nil, err
	}

	minVersion := tls.VersionTLS13
	if cfg.TLSVersion == TLSv12 {
		minVersion = tls.VersionTLS12
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   uint16(minVersion),
	}

	switch {
	case !cfg.VerifyPeer:
		tlsCfg.InsecureSkipVerify = true
	case !cfg.VerifyHostname:
		// Chain trust still matters even when hostname matching is disabled,
		// so skip Go's built-in verification (which always checks the
		// hostname) and redo the chain-only check ourselves.
		tlsCfg.InsecureSkipVerify = true
		tlsCfg.VerifyPeerCertificate = verifyChainOnly(pool)
	}

	return tlsCfg, nil
}

// verifyChainOnly builds a VerifyPeerCertificate callback that checks the
// peer's certificate chains up to a trusted root in roots, without matching
// the connection hostname against the certificate (spec.md §4.G's
// verify_hostname=false path).
func verifyChainOnly(roots *x509.CertPool) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return shardcoreerr.New(shardcoreerr.KindTLS, shardcoreerr.ReasonHostname, "no peer certificate presented")
		}
		leaf, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return shardcoreerr.Wrap(err, shardcoreerr.KindTLS, shardcoreerr.ReasonPeerUntrusted, "parse peer certificate")
		}
		intermediates := x509.NewCertPool()
		for _, raw := range rawCerts[1:] {
			if c, err := x509.ParseCertificate(raw); err == nil {
				intermediates.AddCert(c)
			}
		}
		if _, err := leaf.Verify(x509.VerifyOptions{Roots: roots, Intermediates: intermediates}); err != nil {
			return shardcoreerr.Wrap(err, shardcoreerr.KindTLS, shardcoreerr.ReasonPeerUntrusted, "verify peer chain")
		}
		return nil
	}
}

func loadClientCertificate(certPath, keyPath, passphrase string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return tls.Certificate{}, shardcoreerr.Wrap(err, shardcoreerr.KindTLS, shardcoreerr.ReasonHandshakeFailed, certPath)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return tls.Certificate{}, shardcoreerr.Wrap(err, shardcoreerr.KindTLS, shardcoreerr.ReasonHandshakeFailed, keyPath)
	}

	if passphrase != "" {
		keyPEM, err = decryptPEMKey(keyPEM, passphrase)
		if err != nil {
			return tls.Certificate{}, err
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, shardcoreerr.Wrap(err, shardcoreerr.KindTLS, shardcoreerr.ReasonHandshakeFailed, "X509KeyPair")
	}
	return cert, nil
}

// decryptPEMKey handles a passphrase-protected private key, the "passphrase
// callback" of spec.md §4.G.
func decryptPEMKey(keyPEM []byte, passphrase string) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, shardcoreerr.New(shardcoreerr.KindTLS, shardcoreerr.ReasonHandshakeFailed, "no PEM block in key")
	}
	if !x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // legacy PEM encryption, matches deployments still issuing PKCS#1-encrypted keys
		return keyPEM, nil
	}
	decrypted, err := x509.DecryptPEMBlock(block, []byte(passphrase)) //nolint:staticcheck
	if err != nil {
		return nil, shardcoreerr.Wrap(err, shardcoreerr.KindTLS, shardcoreerr.ReasonHandshakeFailed, "decrypt key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: decrypted}), nil
}

func loadCAPool(caCertPath string) (*x509.CertPool, error) {
	if caCertPath == "" {
		return nil, nil
	}
	caPEM, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, shardcoreerr.Wrap(err, shardcoreerr.KindTLS, shardcoreerr.ReasonPeerUntrusted, caCertPath)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, shardcoreerr.New(shardcoreerr.KindTLS, shardcoreerr.ReasonPeerUntrusted, "invalid CA PEM")
	}
	return pool, nil
}
