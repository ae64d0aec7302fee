package pki_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

// extField builds a non-critical extension with a raw (non-ASN.1-wrapped)
// string value, matching how the parser under test reads ext.Value directly.
func extField(oid asn1.ObjectIdentifier, value string) pkix.Extension {
	return pkix.Extension{Id: oid, Value: []byte(value)}
}

func selfSignedWithExtensions(t *testing.T, cn string, extra []pkix.Extension, notBefore, notAfter time.Time) []byte {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(0xABCDEF),
		Subject:               pkix.Name{CommonName: cn},
		Issuer:                pkix.Name{CommonName: "themis-cluster-ca"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		ExtraExtensions:       extra,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}
