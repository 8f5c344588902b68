package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy"
)

const sseKeepAliveInterval = 15 * time.Second

// CheckDNS streams check domain queries seen by the proxy via SSE.
// A client resolves <anything>.dns-check.dnsdivert.internal and watches for its
// name on this stream to prove that its queries reach the proxy.
// GET /api/v1/check/dns
func (h *Handler) CheckDNS(w http.ResponseWriter, r *http.Request) {
	if h.dnsCheck == nil {
		WriteConflict(w, "DNS check is not available")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteInternalError(w, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch := h.dnsCheck.Subscribe()
	defer h.dnsCheck.Unsubscribe(ch)

	fmt.Fprintf(w, "event: ready\ndata: %s\n\n", dnsproxy.DNSCheckDomain)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case domain, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", domain)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
