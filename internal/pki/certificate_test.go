package pki_test

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"strconv"
	"testing"
	"time"

	"github.com/themis-db/shardcore/internal/pki"
)

var (
	oidShardID         = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 1}
	oidDatacenter      = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 2}
	oidRack            = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 3}
	oidTokenRangeStart = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 4}
	oidTokenRangeEnd   = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 5}
	oidCapabilities    = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 6}
	oidRole            = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55719, 1, 7}
)

func TestParsePEMWithShardExtensions(t *testing.T) {
	extra := []struct {
		oid asn1.ObjectIdentifier
		val string
	}{
		{oidShardID, "shard_007"},
		{oidDatacenter, "dc1"},
		{oidRack, "rack03"},
		{oidTokenRangeStart, strconv.FormatUint(1000, 10)},
		{oidTokenRangeEnd, strconv.FormatUint(2000, 10)},
		{oidCapabilities, "read,write"},
		{oidRole, "primary"},
	}

	exts := make([]pkix.Extension, 0, len(extra))
	for _, e := range extra {
		exts = append(exts, extField(e.oid, e.val))
	}

	certPEM := selfSignedWithExtensions(t, "shard-007.themis.local", exts,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	info, err := pki.ParsePEM(certPEM)
	if err != nil {
		t.Fatalf("ParsePEM: %v", err)
	}

	if info.ShardID != "shard_007" {
		t.Fatalf("ShardID = %q, want shard_007", info.ShardID)
	}
	if info.Datacenter != "dc1" || info.Rack != "rack03" {
		t.Fatalf("unexpected dc/rack: %+v", info)
	}
	if info.TokenRangeStart != 1000 || info.TokenRangeEnd != 2000 {
		t.Fatalf("unexpected token range: %+v", info)
	}
	if !info.HasCapability(pki.CapRead) || !info.HasCapability(pki.CapWrite) {
		t.Fatalf("expected read+write capability: %+v", info.Capabilities)
	}
	if info.Role != pki.RolePrimary {
		t.Fatalf("Role = %q, want primary", info.Role)
	}
	if !pki.ValidateForShardUse(info) {
		t.Fatalf("expected certificate to validate for shard use")
	}
}

func TestCNFallbackWhenExtensionsAbsent(t *testing.T) {
	certPEM := selfSignedWithExtensions(t, "shard-042.themis.local", nil,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	info, err := pki.ParsePEM(certPEM)
	if err != nil {
		t.Fatalf("ParsePEM: %v", err)
	}

	if info.ShardID != "shard-042" {
		t.Fatalf("ShardID = %q, want shard-042", info.ShardID)
	}
	if !info.HasCapability(pki.CapRead) || !info.HasCapability(pki.CapWrite) {
		t.Fatalf("expected default read+write capabilities from fallback")
	}
	if info.TokenRangeStart != 0 {
		t.Fatalf("expected fallback token range to start at 0")
	}
}

func TestValidateForShardUseRejectsExpired(t *testing.T) {
	exts := []pkix.Extension{extField(oidShardID, "shard_1")}
	certPEM := selfSignedWithExtensions(t, "whatever", exts,
		time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))

	info, err := pki.ParsePEM(certPEM)
	if err != nil {
		t.Fatalf("ParsePEM: %v", err)
	}
	if pki.ValidateForShardUse(info) {
		t.Fatalf("expired certificate must not validate")
	}
}

func TestIsRevokedFailsOpenOnMissingCRL(t *testing.T) {
	if pki.IsRevoked("ABCDEF", nil) {
		t.Fatalf("missing CRL must fail open (not revoked)")
	}
	if !pki.IsRevoked("ABCDEF", []string{"abcdef"}) {
		t.Fatalf("expected serial present in CRL to be revoked")
	}
}
