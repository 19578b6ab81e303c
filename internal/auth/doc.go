// Package auth provides authentication and authorisation for the QuickBars hub.
//
// API callers present HS256 JWT bearer tokens minted by the CLI. Each token
// carries a Role, and roles map statically to permissions (no database
// lookup). The package also generates the long-lived credentials handed to
// TVs during pairing.
package auth
