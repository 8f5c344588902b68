// Package firewall enforces the allowed clients list in the kernel, so that
// DNS datagrams from other sources never reach the proxy.
package firewall
