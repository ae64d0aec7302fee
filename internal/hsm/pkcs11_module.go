package hsm

import (
	"encoding/asn1"
	"math/big"
	"strings"

	"github.com/miekg/pkcs11"
)

// module is the thin slice of the PKCS#11 API the signing core actually
// uses. Isolating it behind an interface lets the session pool and
// SigningCore be exercised in tests without a real HSM/SoftHSM present,
// while the production path (pkcs11Module below) talks to a real library
// through github.com/miekg/pkcs11, the standard Go PKCS#11 binding (not
// present anywhere in the retrieved pack — named here per the out-of-pack
// dependency rule).
type module interface {
	Initialize() error
	Finalize() error
	GetSlotList(tokenPresent bool) ([]uint, error)
	OpenSession(slotID uint, flags uint) (pkcs11.SessionHandle, error)
	CloseSession(sh pkcs11.SessionHandle) error
	Login(sh pkcs11.SessionHandle, userType uint, pin string) error
	FindObjects(sh pkcs11.SessionHandle, class uint, label string) ([]pkcs11.ObjectHandle, error)
	GetCertificateSerial(sh pkcs11.SessionHandle, handle pkcs11.ObjectHandle) (string, error)
	Sign(sh pkcs11.SessionHandle, mechanism uint, key pkcs11.ObjectHandle, data []byte) ([]byte, error)
	Verify(sh pkcs11.SessionHandle, mechanism uint, key pkcs11.ObjectHandle, data, signature []byte) error
}

// pkcs11Module is the real implementation backed by a loaded PKCS#11
// library.
type pkcs11Module struct {
	ctx *pkcs11.Ctx
}

func loadModule(libraryPath string) (module, error) {
	ctx := pkcs11.New(libraryPath)
	if ctx == nil {
		return nil, errLibraryLoad
	}
	return &pkcs11Module{ctx: ctx}, nil
}

func (m *pkcs11Module) Initialize() error { return m.ctx.Initialize() }
func (m *pkcs11Module) Finalize() error   { return m.ctx.Finalize() }

func (m *pkcs11Module) GetSlotList(tokenPresent bool) ([]uint, error) {
	return m.ctx.GetSlotList(tokenPresent)
}

func (m *pkcs11Module) OpenSession(slotID uint, flags uint) (pkcs11.SessionHandle, error) {
	return m.ctx.OpenSession(slotID, flags)
}

func (m *pkcs11Module) CloseSession(sh pkcs11.SessionHandle) error {
	return m.ctx.CloseSession(sh)
}

func (m *pkcs11Module) Login(sh pkcs11.SessionHandle, userType uint, pin string) error {
	return m.ctx.Login(sh, userType, pin)
}

func (m *pkcs11Module) FindObjects(sh pkcs11.SessionHandle, class uint, label string) ([]pkcs11.ObjectHandle, error) {
	tmpl := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}
	if err := m.ctx.FindObjectsInit(sh, tmpl); err != nil {
		return nil, err
	}
	defer m.ctx.FindObjectsFinal(sh)

	objs, _, err := m.ctx.FindObjects(sh, 10)
	if err != nil {
		return nil, err
	}
	return objs, nil
}

// GetCertificateSerial reads the certificate's CKA_SERIAL_NUMBER (a DER
// INTEGER) and returns it as uppercase hex.
func (m *pkcs11Module) GetCertificateSerial(sh pkcs11.SessionHandle, handle pkcs11.ObjectHandle) (string, error) {
	attrs, err := m.ctx.GetAttributeValue(sh, handle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_SERIAL_NUMBER, nil),
	})
	if err != nil {
		return "", err
	}
	if len(attrs) == 0 || len(attrs[0].Value) == 0 {
		return "", nil
	}
	var serial *big.Int
	if _, err := asn1.Unmarshal(attrs[0].Value, &serial); err != nil {
		return "", err
	}
	return strings.ToUpper(serial.Text(16)), nil
}

func (m *pkcs11Module) Sign(sh pkcs11.SessionHandle, mechanism uint, key pkcs11.ObjectHandle, data []byte) ([]byte, error) {
	if err := m.ctx.SignInit(sh, []*pkcs11.Mechanism{pkcs11.NewMechanism(mechanism, nil)}, key); err != nil {
		return nil, err
	}
	return m.ctx.Sign(sh, data)
}

func (m *pkcs11Module) Verify(sh pkcs11.SessionHandle, mechanism uint, key pkcs11.ObjectHandle, data, signature []byte) error {
	if err := m.ctx.VerifyInit(sh, []*pkcs11.Mechanism{pkcs11.NewMechanism(mechanism, nil)}, key); err != nil {
		return err
	}
	return m.ctx.Verify(sh, data, signature)
}
