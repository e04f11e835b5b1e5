package supervisor

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/throttlehq/throttle/internal/config"
	"github.com/throttlehq/throttle/internal/debug"
	"github.com/throttlehq/throttle/internal/errors"
)

const (
	certPath       = "certs/system_manager.pem"
	keyPath        = "certs/system_manager.key"
	certValidDays  = 3650
	diagnosticsCmd = "status"
)

// RoleStatus reports whether a role's heartbeat is currently fresh.
type RoleStatus func() map[string]bool

// SystemManager owns the IPC bearer token and the self-signed TLS
// certificate used by the diagnostics listener (spec.md §4.7: "generates a
// self-signed certificate and an IPC bearer token on first run"), and
// enforces workflow order: when the arbiter's heartbeat goes stale, all
// dependent roles are told to PAUSE; when it returns, they are told to
// RESUME.
type SystemManager struct {
	roles   RoleStatus
	onPause func(ctx context.Context)
	onResume func(ctx context.Context)

	arbiterWasUp bool
}

// NewSystemManager builds a SystemManager that reports role liveness via
// roles and invokes onPause/onResume when the arbiter's availability
// changes.
func NewSystemManager(roles RoleStatus, onPause, onResume func(ctx context.Context)) *SystemManager {
	return &SystemManager{roles: roles, onPause: onPause, onResume: onResume, arbiterWasUp: true}
}

// EnsureCredentials generates the IPC token (via internal/config.Token,
// which already persists to .env on first run) and the diagnostics TLS
// certificate if either is missing.
func (m *SystemManager) EnsureCredentials() (string, error) {
	token, err := config.Token()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(certPath); err == nil {
		return token, nil
	}
	if err := generateSelfSignedCert(); err != nil {
		return "", err
	}
	return token, nil
}

func generateSelfSignedCert() error {
	if err := os.MkdirAll("certs", 0o755); err != nil {
		return errors.Classify(errors.KindDisk, err)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return errors.Classify(errors.KindResource, err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return errors.Classify(errors.KindResource, err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().AddDate(0, 0, certValidDays),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return errors.Classify(errors.KindResource, err)
	}

	certOut, err := os.Create(certPath)
	if err != nil {
		return errors.Classify(errors.KindDisk, err)
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		return errors.Classify(errors.KindDisk, err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return errors.Classify(errors.KindResource, err)
	}
	keyOut, err := os.OpenFile(keyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Classify(errors.KindDisk, err)
	}
	defer keyOut.Close()
	return pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
}

// ListenDiagnostics serves the TLS diagnostics listener on
// config.PortSystemManager until ctx is done. It answers a bare "status\n"
// line with a newline-terminated "<role> <up|down>" line per role
// (spec.md §4.7: "answers a status command with a map of role ->
// running").
func (m *SystemManager) ListenDiagnostics(ctx context.Context) error {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return errors.Classify(errors.KindResource, err)
	}

	l, err := tls.Listen("tcp", "127.0.0.1:54443", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		return errors.Classify(errors.KindResource, errors.Wrapf(err, "listen diagnostics"))
	}
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			debug.Log("systemmanager: accept error: %v", err)
			continue
		}
		go m.handleDiagnostics(conn)
	}
}

func (m *SystemManager) handleDiagnostics(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	if scanner.Text() != diagnosticsCmd {
		return
	}

	w := bufio.NewWriter(conn)
	defer w.Flush()
	for role, up := range m.roles() {
		state := "down"
		if up {
			state = "up"
		}
		w.WriteString(role + " " + state + "\n")
	}
}

// EnforceWorkflowOrder implements spec.md §4.7's ordering rule: if the
// arbiter is down, dependent roles are told to PAUSE; when it returns,
// RESUME. Call on every supervisor tick.
func (m *SystemManager) EnforceWorkflowOrder(ctx context.Context) {
	up := m.roles()["arbiter"]
	if up == m.arbiterWasUp {
		return
	}
	m.arbiterWasUp = up
	if up {
		if m.onResume != nil {
			m.onResume(ctx)
		}
	} else {
		if m.onPause != nil {
			m.onPause(ctx)
		}
	}
}
