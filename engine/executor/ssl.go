package executor

import (
	"bytes"
	"context"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

// This executor only reports hard failure cases: expired, untrusted, or
// revoked. "Expiring soon" warnings are a stats/notification concern, not
// a probe outcome.
const ocspRequestTimeout = 5 * time.Second

// SSLExecutor opens a TLS connection to Target.URL, validates the chain,
// checks expiry, and queries OCSP for revocation when the leaf certificate
// names a responder.
type SSLExecutor struct {
	httpClient *http.Client
}

func NewSSLExecutor() *SSLExecutor {
	return &SSLExecutor{httpClient: &http.Client{Timeout: ocspRequestTimeout}}
}

func (e *SSLExecutor) Execute(ctx context.Context, target *monitoring.Target) Outcome {
	ctx, cancel := withDeadline(ctx, target)
	defer cancel()

	addr, err := hostPortOf(target.URL, "443")
	if err != nil {
		return Outcome{ErrorKind: monitoring.ErrorTransport, ErrorMessage: err.Error()}
	}
	host, _, _ := net.SplitHostPort(addr)

	dialer := &net.Dialer{}
	start := time.Now()

	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		elapsed := elapsedMs(start)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorHandshakeTimeout, ErrorMessage: err.Error()}
		}
		return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorTransport, ErrorMessage: err.Error()}
	}
	defer rawConn.Close()

	tlsConn := tls.Client(rawConn, &tls.Config{ServerName: host})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		elapsed := elapsedMs(start)
		return classifyTLSError(err, elapsed)
	}
	elapsed := elapsedMs(start)

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorCertUntrusted, ErrorMessage: "no peer certificates presented"}
	}
	leaf := state.PeerCertificates[0]

	if time.Now().After(leaf.NotAfter) {
		return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorCertExpired, ErrorMessage: fmt.Sprintf("certificate expired at %s", leaf.NotAfter)}
	}

	if len(state.PeerCertificates) > 1 {
		if revoked, reason := e.checkRevocation(ctx, leaf, state.PeerCertificates[1]); revoked {
			return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorCertSignature, ErrorMessage: reason}
		}
	}

	return Outcome{Success: true, ResponseTimeMs: elapsed}
}

func classifyTLSError(err error, elapsed int64) Outcome {
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &invalidErr) && invalidErr.Reason == x509.Expired {
		return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorCertExpired, ErrorMessage: err.Error()}
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorCertUntrusted, ErrorMessage: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorHandshakeTimeout, ErrorMessage: err.Error()}
	}
	return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorTLS, ErrorMessage: err.Error()}
}

// checkRevocation queries the leaf's first OCSP responder, if any. It fails
// open: a responder that can't be reached or doesn't answer cleanly is not
// treated as revoked, since OCSP infrastructure outages are common and
// shouldn't flap unrelated targets down.
func (e *SSLExecutor) checkRevocation(ctx context.Context, leaf, issuer *x509.Certificate) (revoked bool, reason string) {
	if len(leaf.OCSPServer) == 0 {
		return false, ""
	}

	reqBytes, err := ocsp.CreateRequest(leaf, issuer, &ocsp.RequestOptions{Hash: crypto.SHA1})
	if err != nil {
		return false, ""
	}

	ctx, cancel := context.WithTimeout(ctx, ocspRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, leaf.OCSPServer[0], bytes.NewReader(reqBytes))
	if err != nil {
		return false, ""
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false, ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, ""
	}

	result, err := ocsp.ParseResponse(body, issuer)
	if err != nil {
		return false, ""
	}

	if result.Status == ocsp.Revoked {
		return true, fmt.Sprintf("certificate revoked at %s: %s", result.RevokedAt, result.RevocationReason)
	}
	return false, ""
}
