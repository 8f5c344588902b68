// Package dnsproxy implements the UDP DNS server loop.
//
// Every datagram is decoded and checked against the client restriction, then
// handled in its own goroutine:
//   - queries for the check domain are answered locally and reported to subscribers
//   - names admitted by the policy are answered with the diversion address
//   - all other A queries are resolved through the upstream chain and answered
//     with the resolved address, or with a negative reply when resolution fails
//
// The number of queries in flight is bounded; datagrams arriving while the limit
// is reached are shed. The policy snapshot can be swapped at any time with Reload,
// and Stop drains in-flight queries for a grace period before cancelling them.
package dnsproxy
