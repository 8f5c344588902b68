// Package api provides the local control API of dnsdivert.
//
// The API lets an administrator read and replace the whitelist and the allowed
// clients list, inspect the proxy state and counters, and trigger a reload
// without restarting the process.
//
// # Response Format
//
// All successful responses wrap data in a "data" field:
//
//	{
//	  "data": { /* response payload */ }
//	}
//
// Error responses use the following format:
//
//	{
//	  "error": {
//	    "code": "error_code",
//	    "message": "Human-readable error message",
//	    "details": { /* optional context */ }
//	  }
//	}
//
// Access is restricted to loopback and private networks.
package api
