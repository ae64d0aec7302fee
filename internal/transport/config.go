package transport

// TLSVersion names the minimum negotiated TLS version, spec.md §4.G: all
// versions below the configured one are explicitly disabled.
type TLSVersion string

const (
	TLSv12 TLSVersion = "TLSv1.2"
	TLSv13 TLSVersion = "TLSv1.3"
)

// Config is the mTLS client configuration enumerated in spec.md §6.
type Config struct {
	CertPath       string
	KeyPath        string
	KeyPassphrase  string
	CACertPath     string
	CRLPath        string
	TLSVersion     TLSVersion
	VerifyPeer     bool
	VerifyHostname bool

	ConnectTimeoutMs int
	RequestTimeoutMs int
	MaxRetries       int
	RetryDelayMs     int

	EnablePooling  bool
	MaxConnections int
	IdleTimeoutMs  int
}

// DefaultConfig mirrors the defaults implied by spec.md §4.G/§6.
func DefaultConfig() Config {
	return Config{
		TLSVersion:       TLSv13,
		VerifyPeer:       true,
		VerifyHostname:   true,
		ConnectTimeoutMs: 5_000,
		RequestTimeoutMs: 10_000,
		MaxRetries:       3,
		RetryDelayMs:     200,
		EnablePooling:    true,
		MaxConnections:   16,
		IdleTimeoutMs:    90_000,
	}
}
