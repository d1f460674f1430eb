// Package httpproxy builds an outbound *http.Client honoring the
// HTTP_PROXY / SOCKS5_PROXY configuration keys from spec.md §6, the same
// concern the teacher's util.SetProxy helper covers for every upstream
// HTTP client it constructs.
package httpproxy

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// NewClient returns an *http.Client routed through socks5Addr (if set) or
// httpProxyURL (if set); with neither, a plain client is returned.
func NewClient(httpProxyURL, socks5Addr string, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{}

	switch {
	case socks5Addr != "":
		dialer, err := proxy.SOCKS5("tcp", socks5Addr, nil, proxy.Direct)
		if err != nil {
			return nil, err
		}
		if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = ctxDialer.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	case httpProxyURL != "":
		parsed, err := url.Parse(httpProxyURL)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(parsed)
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
