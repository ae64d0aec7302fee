// Package pki parses and validates shard-identity X.509 certificates
// (spec.md §3/§4.D): certificates are treated as identity, not just
// transport, so shard id, datacenter/rack, token range and capabilities are
// extracted explicitly rather than trusting "TLS peer is trusted" alone.
package pki

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/themis-db/shardcore/internal/shardcoreerr"
)

// Role is the shard role asserted by a certificate.
type Role string

const (
	RolePrimary Role = "primary"
	RoleReplica Role = "replica"
)

// Capability mirrors topology.Capability without importing that package,
// keeping pki free of a dependency on the topology map it feeds.
type Capability string

const (
	CapRead      Capability = "read"
	CapWrite     Capability = "write"
	CapReplicate Capability = "replicate"
	CapAdmin     Capability = "admin"
)

// Private OIDs used for the shard-identity extensions. Deployments are free
// to remap these; the parser only needs internal consistency with its own
// issuer (spec.md §6 notes the exact OIDs are a deployment choice).
var (
	oidShardID         = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 1}
	oidDatacenter      = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 2}
	oidRack            = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 3}
	oidTokenRangeStart = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 4}
	oidTokenRangeEnd   = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 5}
	oidCapabilities    = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 6}
	oidRole            = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 7}
)

var cnShardPattern = regexp.MustCompile(`^shard-([A-Za-z0-9_]+)`)

// ShardCertificateInfo is the parsed, shard-relevant view of a certificate.
type ShardCertificateInfo struct {
	SubjectCN  string
	IssuerCN   string
	Serial     string // uppercase hex
	NotBefore  time.Time
	NotAfter   time.Time
	SANDNS     []string
	SANIP      []string
	SANURI     []string

	ShardID         string
	Datacenter      string
	Rack            string
	TokenRangeStart uint64
	TokenRangeEnd   uint64
	Capabilities    []Capability
	Role            Role
}

// HasCapability reports whether cap is present.
func (c ShardCertificateInfo) HasCapability(cap Capability) bool {
	for _, have := range c.Capabilities {
		if have == cap {
			return true
		}
	}
	return false
}

// ParsePEM parses a single PEM-encoded certificate.
func ParsePEM(data []byte) (ShardCertificateInfo, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return ShardCertificateInfo{}, shardcoreerr.New(shardcoreerr.KindParse, shardcoreerr.ReasonCertInvalid, "no PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return ShardCertificateInfo{}, shardcoreerr.Wrap(err, shardcoreerr.KindParse, shardcoreerr.ReasonCertInvalid, "x509 parse")
	}

	return fromX509(cert), nil
}

// ParseFile reads and parses a PEM file from disk.
func ParseFile(path string) (ShardCertificateInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ShardCertificateInfo{}, shardcoreerr.Wrap(err, shardcoreerr.KindParse, shardcoreerr.ReasonCertInvalid, path)
	}
	return ParsePEM(data)
}

func fromX509(cert *x509.Certificate) ShardCertificateInfo {
	info := ShardCertificateInfo{
		SubjectCN: cert.Subject.CommonName,
		IssuerCN:  cert.Issuer.CommonName,
		Serial:    strings.ToUpper(cert.SerialNumber.Text(16)),
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		SANDNS:    cert.DNSNames,
		SANURI:    uriStrings(cert.URIs),
	}
	for _, ip := range cert.IPAddresses {
		info.SANIP = append(info.SANIP, ip.String())
	}

	hasExtensions := extractExtensions(cert, &info)
	if !hasExtensions {
		applyCNFallback(&info)
	}
	return info
}

func uriStrings(uris []*url.URL) []string {
	if len(uris) == 0 {
		return nil
	}
	out := make([]string, len(uris))
	for i, u := range uris {
		out[i] = u.String()
	}
	return out
}

// extractExtensions reads the shard-identity extensions; returns true if at
// least the shard id extension was present.
func extractExtensions(cert *x509.Certificate, info *ShardCertificateInfo) bool {
	found := false
	for _, ext := range cert.Extensions {
		switch {
		case ext.Id.Equal(oidShardID):
			info.ShardID = string(ext.Value)
			found = true
		case ext.Id.Equal(oidDatacenter):
			info.Datacenter = string(ext.Value)
		case ext.Id.Equal(oidRack):
			info.Rack = string(ext.Value)
		case ext.Id.Equal(oidTokenRangeStart):
			v, _ := strconv.ParseUint(string(ext.Value), 10, 64)
			info.TokenRangeStart = v
		case ext.Id.Equal(oidTokenRangeEnd):
			v, _ := strconv.ParseUint(string(ext.Value), 10, 64)
			info.TokenRangeEnd = v
		case ext.Id.Equal(oidCapabilities):
			info.Capabilities = parseCapabilities(string(ext.Value))
		case ext.Id.Equal(oidRole):
			info.Role = Role(ext.Value)
		}
	}
	return found
}

func parseCapabilities(raw string) []Capability {
	parts := strings.Split(raw, ",")
	caps := make([]Capability, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			caps = append(caps, Capability(p))
		}
	}
	return caps
}

// applyCNFallback extracts a shard id from a "shard-XXX" CN prefix and
// assigns default capabilities and the full token range. This is a
// deployment aid for bootstrap, NOT a security mechanism (spec.md §4.D):
// production deployments must populate the extensions explicitly.
func applyCNFallback(info *ShardCertificateInfo) {
	m := cnShardPattern.FindStringSubmatch(info.SubjectCN)
	if m == nil {
		return
	}
	info.ShardID = "shard-" + m[1]
	info.Capabilities = []Capability{CapRead, CapWrite}
	info.TokenRangeStart = 0
	info.TokenRangeEnd = ^uint64(0)
}

// VerifyAgainstCA performs a cryptographic signature check only — no
// validity-window or revocation checks, which are separate operations.
func VerifyAgainstCA(certPEM, caPEM []byte) (bool, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return false, shardcoreerr.New(shardcoreerr.KindParse, shardcoreerr.ReasonCertInvalid, "cert PEM")
	}
	caBlock, _ := pem.Decode(caPEM)
	if caBlock == nil {
		return false, shardcoreerr.New(shardcoreerr.KindParse, shardcoreerr.ReasonCertInvalid, "ca PEM")
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return false, shardcoreerr.Wrap(err, shardcoreerr.KindParse, shardcoreerr.ReasonCertInvalid, "cert parse")
	}
	ca, err := x509.ParseCertificate(caBlock.Bytes)
	if err != nil {
		return false, shardcoreerr.Wrap(err, shardcoreerr.KindParse, shardcoreerr.ReasonCertInvalid, "ca parse")
	}

	if err := cert.CheckSignatureFrom(ca); err != nil {
		return false, nil
	}
	return true, nil
}

// IsRevoked reports membership of serial in crl. A missing CRL returns
// false: fail-open for the absence of a CRL, not for the presence of a
// match within one.
func IsRevoked(serial string, crl []string) bool {
	if len(crl) == 0 {
		return false
	}
	serial = strings.ToUpper(serial)
	for _, revoked := range crl {
		if strings.ToUpper(revoked) == serial {
			return true
		}
	}
	return false
}

// ValidateForShardUse checks the combined invariant from spec.md §3: within
// its validity window, non-empty shard id, at least one capability, and a
// non-inverted token range.
func ValidateForShardUse(info ShardCertificateInfo) bool {
	now := time.Now()
	if now.Before(info.NotBefore) || now.After(info.NotAfter) {
		return false
	}
	if info.ShardID == "" {
		return false
	}
	if len(info.Capabilities) == 0 {
		return false
	}
	if info.TokenRangeStart > info.TokenRangeEnd {
		return false
	}
	return true
}
