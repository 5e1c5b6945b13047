// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package download

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"gitlab.com/tozd/go/errors"
)

// 🔐 ChallengeKind is the kind of authentication challenge raised by a transfer
type ChallengeKind int

const (
	// ChallengeServerTrust is raised during the TLS handshake
	ChallengeServerTrust ChallengeKind = iota
	// ChallengeHTTPBasic is raised by a 401 asking for basic credentials
	ChallengeHTTPBasic
)

// Disposition is a handler's answer to a challenge
type Disposition int

const (
	// PerformDefaultHandling verifies the server normally and sends no credentials
	PerformDefaultHandling Disposition = iota
	// UseCredential trusts the server, or answers a basic challenge with the credential
	UseCredential
	// CancelChallenge aborts the transfer
	CancelChallenge
	// RejectProtectionSpace refuses this challenge
	RejectProtectionSpace
)

// Challenge describes the connection a handler is asked about
type Challenge struct {
	Kind  ChallengeKind
	Host  string
	Realm string
	// TLS is set for server trust challenges
	TLS *tls.ConnectionState
}

// Credential answers a basic challenge
type Credential struct {
	Username string
	Password string
}

// ChallengeHandler decides how a challenge is answered
type ChallengeHandler func(Challenge) (Disposition, *Credential)

// 🛡️ WithChallenge returns a copy of client whose TLS handshakes consult
// handler. Certificates are verified the default way unless the handler
// answers UseCredential. Direct connections dial through the transport's
// DialContext when set. Connections tunnelled through a proxy identify the
// server by SNI, so an IP literal behind a proxy fails closed.
func WithChallenge(client *http.Client, handler ChallengeHandler) *http.Client {
	if handler == nil {
		return client
	}
	if client == nil {
		client = http.DefaultClient
	}

	base, ok := client.Transport.(*http.Transport)
	if client.Transport == nil {
		base, ok = http.DefaultTransport.(*http.Transport)
	}
	if !ok {
		return client
	}

	transport := base.Clone()
	tlsBase := &tls.Config{}
	if transport.TLSClientConfig != nil {
		tlsBase = transport.TLSClientConfig.Clone()
	}
	roots := tlsBase.RootCAs

	dial := transport.DialContext
	if dial == nil {
		dial = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	}

	// proxied https never reaches DialTLSContext
	proxied := tlsBase.Clone()
	proxied.InsecureSkipVerify = true
	proxied.VerifyConnection = func(cs tls.ConnectionState) error {
		if cs.ServerName == "" {
			return errors.Errorf("server trust: unknown host behind proxy: %w", ErrChallengeRejected)
		}
		return verifyWith(handler, cs, cs.ServerName, roots)
	}
	transport.TLSClientConfig = proxied

	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		cfg := tlsBase.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			return verifyWith(handler, cs, host, roots)
		}

		raw, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		conn := tls.Client(raw, cfg)
		if err := conn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, err
		}
		return conn, nil
	}

	wrapped := *client
	wrapped.Transport = transport
	return &wrapped
}

func verifyWith(handler ChallengeHandler, cs tls.ConnectionState, host string, roots *x509.CertPool) error {
	disposition, _ := handler(Challenge{Kind: ChallengeServerTrust, Host: host, TLS: &cs})
	switch disposition {
	case UseCredential:
		return nil
	case PerformDefaultHandling:
		return verifyDefault(cs, host, roots)
	default:
		return errors.Errorf("server trust for %s: %w", host, ErrChallengeRejected)
	}
}

func verifyDefault(cs tls.ConnectionState, host string, roots *x509.CertPool) error {
	if len(cs.PeerCertificates) == 0 {
		return errors.Errorf("no peer certificates presented by %s", host)
	}
	opts := x509.VerifyOptions{
		DNSName:       host,
		Roots:         roots,
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}
	_, err := cs.PeerCertificates[0].Verify(opts)
	return err
}

// TrustHosts answers server trust challenges for the listed hosts with
// UseCredential, and basic challenges with creds when it is set.
func TrustHosts(creds *Credential, hosts ...string) ChallengeHandler {
	return func(c Challenge) (Disposition, *Credential) {
		switch c.Kind {
		case ChallengeServerTrust:
			if slices.Contains(hosts, c.Host) {
				return UseCredential, nil
			}
		case ChallengeHTTPBasic:
			if creds != nil {
				return UseCredential, creds
			}
		}
		return PerformDefaultHandling, nil
	}
}

// basicRealm parses the realm of a Basic WWW-Authenticate header
func basicRealm(header string) (string, bool) {
	scheme, params, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, "basic") {
		return "", false
	}
	for _, p := range strings.Split(params, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && strings.EqualFold(k, "realm") {
			return strings.Trim(v, `"`), true
		}
	}
	return "", true
}
