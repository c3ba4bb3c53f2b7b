// Package gpauth implements the GlobalProtect-style prelogin, login, and
// getconfig HTTPS handshake that authenticates a user against the gateway
// and retrieves the tunnel configuration the session will be built from.
package gpauth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

const userAgent = "PAN GlobalProtect"

// AuthKind distinguishes the authentication method a gateway demands.
type AuthKind int

const (
	AuthKindPassword AuthKind = iota
	AuthKindSAML
)

func (k AuthKind) String() string {
	if k == AuthKindSAML {
		return "saml"
	}
	return "password"
}

// PreloginResult is the outcome of the prelogin exchange.
type PreloginResult struct {
	Kind          AuthKind
	LabelUsername string
	LabelPassword string
	SAMLRequest   string
}

// LoginResult is the outcome of the login exchange. AuthCookie is a
// bearer secret and must never be persisted to disk; it lives only in
// process memory for the lifetime of the session.
type LoginResult struct {
	AuthCookie     string
	Username       string
	Domain         string
	Portal         string
	GatewayAddress string
}

// TunnelConfig is the outcome of the getconfig exchange.
type TunnelConfig struct {
	MTU            uint16
	InternalIP     net.IP
	InternalIP6    net.IP
	DNSServers     []net.IP
	TimeoutSeconds uint64
}

// Client drives the three-step handshake against a single gateway.
type Client struct {
	Gateway string
	HTTP    *http.Client
}

// New creates a Client for the given gateway hostname using a fresh
// http.Client with TLS certificate validation enforced (the zero value
// of http.Transport never disables verification, so no explicit
// TLSClientConfig is required).
func New(gateway string) *Client {
	return &Client{
		Gateway: gateway,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type preloginXML struct {
	XMLName        xml.Name `xml:"prelogin-response"`
	Status         string   `xml:"status"`
	UsernameLabel  string   `xml:"username-label"`
	PasswordLabel  string   `xml:"password-label"`
	SAMLAuthMethod string   `xml:"saml-auth-method"`
	SAMLRequest    string   `xml:"saml-request"`
}

// Prelogin performs the prelogin step, determining whether the gateway
// expects a password or a SAML-driven login.
func (c *Client) Prelogin(ctx context.Context) (*PreloginResult, error) {
	dlog.Infof(ctx, "prelogin to %s", c.Gateway)

	form := url.Values{
		"tmp":       {"tmp"},
		"clientVer": {"4100"},
		"clientos":  {"Windows"},
	}

	body, err := c.post(ctx, "prelogin.esp", form)
	if err != nil {
		return nil, err
	}

	var parsed preloginXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, vpnerr.NewAuth(vpnerr.AuthSubXML, fmt.Sprintf("prelogin response: %v", err))
	}
	if parsed.Status != "Success" {
		return nil, vpnerr.NewAuth(vpnerr.AuthSubServerStatus, fmt.Sprintf("prelogin status %q", parsed.Status))
	}

	result := &PreloginResult{
		Kind:          AuthKindPassword,
		LabelUsername: parsed.UsernameLabel,
		LabelPassword: parsed.PasswordLabel,
	}
	if result.LabelUsername == "" {
		result.LabelUsername = "Username"
	}
	if result.LabelPassword == "" {
		result.LabelPassword = "Password"
	}
	if parsed.SAMLAuthMethod != "" {
		result.Kind = AuthKindSAML
		result.SAMLRequest = parsed.SAMLRequest
	}
	return result, nil
}

type jnlpXML struct {
	XMLName         xml.Name `xml:"jnlp"`
	ApplicationDesc struct {
		Argument []string `xml:"argument"`
	} `xml:"application-desc"`
}

// Login authenticates with username/password (and, for DUO-style MFA,
// an out-of-band passcode — the literal value "push" triggers a push
// notification on gateways that support it).
func (c *Client) Login(ctx context.Context, username, password, passcode string) (*LoginResult, error) {
	dlog.Infof(ctx, "login as %s", username)

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}

	form := url.Values{
		"user":       {username},
		"passwd":     {password},
		"computer":   {hostname},
		"os-version": {"Windows"},
	}
	if passcode != "" {
		form.Set("passcode", passcode)
	}

	body, err := c.post(ctx, "login.esp", form)
	if err != nil {
		return nil, err
	}

	var parsed jnlpXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, vpnerr.NewAuth(vpnerr.AuthSubXML, fmt.Sprintf("login response: %v", err))
	}

	args := parsed.ApplicationDesc.Argument
	var authCookie, portal, domain, gatewayAddress string
	for i := 0; i+1 < len(args); {
		key := args[i]
		if !strings.HasPrefix(key, "(") || !strings.HasSuffix(key, ")") {
			// Not a key: step past it alone so later pairs stay aligned.
			i++
			continue
		}
		value := args[i+1]
		i += 2
		switch key {
		case "(auth-cookie)":
			authCookie = value
		case "(portal)":
			portal = value
		case "(domain)":
			domain = value
		case "(gateway-address)":
			gatewayAddress = value
		}
	}

	if authCookie == "" {
		return nil, vpnerr.NewAuth(vpnerr.AuthSubMissingField, "auth-cookie")
	}
	if portal == "" {
		portal = c.Gateway
	}
	if gatewayAddress == "" {
		gatewayAddress = c.Gateway
	}

	return &LoginResult{
		AuthCookie:     authCookie,
		Username:       username,
		Domain:         domain,
		Portal:         portal,
		GatewayAddress: gatewayAddress,
	}, nil
}

type policyXML struct {
	XMLName    xml.Name `xml:"policy"`
	IPAddress  string   `xml:"ip-address"`
	IPv6       string   `xml:"ipv6-address"`
	MTU        string   `xml:"mtu"`
	DNS        struct {
		Member []string `xml:"member"`
	} `xml:"dns"`
	Timeout string `xml:"timeout"`
}

// GetConfig retrieves the tunnel configuration using the auth cookie
// returned by Login. preferredIP may be nil, in which case "0.0.0.0" is
// sent per the wire protocol's convention for "no preference".
func (c *Client) GetConfig(ctx context.Context, authCookie string, preferredIP net.IP) (*TunnelConfig, error) {
	dlog.Info(ctx, "getconfig")

	preferred := "0.0.0.0"
	if preferredIP != nil {
		preferred = preferredIP.String()
	}

	form := url.Values{
		"user":         {""},
		"portal":       {c.Gateway},
		"authcookie":   {authCookie},
		"preferred-ip": {preferred},
		"client-type":  {"1"},
		"os-version":   {"Windows"},
		"app-version":  {"4.1.0"},
	}

	body, err := c.post(ctx, "getconfig.esp", form)
	if err != nil {
		return nil, err
	}

	var parsed policyXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, vpnerr.NewAuth(vpnerr.AuthSubXML, fmt.Sprintf("getconfig response: %v", err))
	}

	if parsed.IPAddress == "" {
		return nil, vpnerr.NewAuth(vpnerr.AuthSubMissingField, "ip-address")
	}
	internalIP := net.ParseIP(parsed.IPAddress)
	if internalIP == nil {
		return nil, vpnerr.NewAuth(vpnerr.AuthSubMissingField, "ip-address (unparseable)")
	}

	var internalIP6 net.IP
	if parsed.IPv6 != "" {
		internalIP6 = net.ParseIP(parsed.IPv6)
	}

	mtu := uint16(1400)
	if parsed.MTU != "" {
		if v, err := strconv.ParseUint(parsed.MTU, 10, 16); err == nil {
			mtu = uint16(v)
		}
	}

	var dnsServers []net.IP
	for _, member := range parsed.DNS.Member {
		if ip := net.ParseIP(strings.TrimSpace(member)); ip != nil {
			dnsServers = append(dnsServers, ip)
		}
	}

	timeout := uint64(3600)
	if parsed.Timeout != "" {
		if v, err := strconv.ParseUint(parsed.Timeout, 10, 64); err == nil {
			timeout = v
		}
	}

	return &TunnelConfig{
		MTU:            mtu,
		InternalIP:     internalIP,
		InternalIP6:    internalIP6,
		DNSServers:     dnsServers,
		TimeoutSeconds: timeout,
	}, nil
}

// isTLSError reports whether err's chain originates from certificate
// verification or the TLS handshake itself, as opposed to a transport-level
// HTTP failure (connection refused, timeout, malformed response).
func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuthErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var certInvalidErr x509.CertificateInvalidError
	var recordHeaderErr tls.RecordHeaderError
	return errors.As(err, &unknownAuthErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &certInvalidErr) ||
		errors.As(err, &recordHeaderErr)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("https://%s/ssl-vpn/%s", c.Gateway, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, vpnerr.NewAuth(vpnerr.AuthSubHTTP, err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if isTLSError(err) {
			return nil, vpnerr.NewAuth(vpnerr.AuthSubTLS, err.Error())
		}
		return nil, vpnerr.NewAuth(vpnerr.AuthSubHTTP, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vpnerr.NewAuth(vpnerr.AuthSubHTTP, err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, vpnerr.NewAuth(vpnerr.AuthSubHTTP, fmt.Sprintf("%s: unexpected status %d", path, resp.StatusCode))
	}
	return body, nil
}
