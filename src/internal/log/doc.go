// Package log provides leveled logging for dnsdivert.
//
// The package keeps a small global API (Debugf, Infof, Warnf, Errorf, Fatalf) on top of
// a zap sugared logger so that call sites stay terse while output stays structured.
//
// # Log Levels
//
//   - DEBUG: per-query diagnostics (only shown in verbose mode)
//   - INFO: lifecycle events (bind, reload, shutdown)
//   - WARN: recoverable problems (upstream timeouts, shed datagrams)
//   - ERROR: failures; written to stderr
//
// # Example Usage
//
//	log.Infof("DNS proxy started on %s", addr)
//	log.SetVerbose(true)
//	log.Debugf("[%04x] cache hit for %s", id, name)
//
// Everything except ERROR goes to stdout. SetOutputs redirects both streams,
// which tests use to capture log lines.
package log
