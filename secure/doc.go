// Package secure is the access-control fabric: secret providers, API key
// issuance and authentication, role-based authorization, sliding-window rate
// limiting, and input validation with injection detection.
//
// Every MCP tool handler and every CLI admin command passes through this
// package. API keys never reach logs; use Mask when a secret has to be
// displayed.
package secure
