package upstreams

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/wire"
	"github.com/miekg/dns"
)

const (
	dohScheme   = "doh://"
	httpsScheme = "https://"

	dohClientTimeout       = 10 * time.Second
	dohIdleConnTimeout     = 30 * time.Second
	dohMaxIdleConns        = 10
	dohMaxIdleConnsPerHost = 5

	dnsMessageContentType = "application/dns-message"

	// Largest DNS message; anything longer is not a valid response.
	dohMaxResponseSize = 65535
)

// DoHUpstream implements Upstream using DNS-over-HTTPS (RFC 8484, POST).
type DoHUpstream struct {
	BaseUpstream
	url    string
	client *http.Client
}

// NewDoHUpstream creates a new DNS-over-HTTPS upstream.
// The domain parameter restricts the upstream to a specific domain (empty = all domains).
func NewDoHUpstream(urlStr string, restrictedDomain string) *DoHUpstream {
	if strings.HasPrefix(urlStr, dohScheme) {
		urlStr = httpsScheme + strings.TrimPrefix(urlStr, dohScheme)
	}

	return &DoHUpstream{
		BaseUpstream: NewBaseUpstream(restrictedDomain),
		url:          urlStr,
		client: &http.Client{
			Timeout: dohClientTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        dohMaxIdleConns,
				IdleConnTimeout:     dohIdleConnTimeout,
				DisableCompression:  true,
				MaxIdleConnsPerHost: dohMaxIdleConnsPerHost,
			},
		},
	}
}

// Query sends a DNS message to the DoH endpoint.
func (d *DoHUpstream) Query(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	packed, err := req.Pack()
	if err != nil {
		return nil, fmt.Errorf("failed to pack DNS message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", dnsMessageContentType)
	httpReq.Header.Set("Accept", dnsMessageContentType)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("DoH request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DoH request failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, dohMaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read DoH response: %w", err)
	}

	dnsResp := new(dns.Msg)
	if err := dnsResp.Unpack(body); err != nil {
		return nil, fmt.Errorf("failed to unpack DNS response: %w", err)
	}

	return dnsResp, nil
}

// Resolve queries the endpoint for the A record of name.
func (d *DoHUpstream) Resolve(ctx context.Context, name string) (netip.Addr, error) {
	req := wire.EncodeQuery(name)
	// RFC 8484 recommends ID 0 for cache friendliness.
	req.Id = 0

	resp, err := d.Query(ctx, req)
	if err != nil {
		return netip.Addr{}, err
	}
	return addressFromResponse(name, d.String(), resp)
}

// String returns the upstream in URL form.
func (d *DoHUpstream) String() string {
	if strings.HasPrefix(d.url, httpsScheme) {
		return d.withDomain(dohScheme + strings.TrimPrefix(d.url, httpsScheme))
	}
	return d.withDomain(d.url)
}

// Close closes idle connections.
func (d *DoHUpstream) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
