// Package discovery finds QuickBars TV apps on the local network.
//
// TVs advertise the _quickbars._tcp service over mDNS with TXT properties
// id, name, api and app_version. A Scanner browses for the service,
// keeps a cache of candidates that expire when no longer seen, and
// reports each sighting to a presence callback so paired devices can
// follow address changes.
//
// Sightings and expiry never affect paired sessions. Only an explicit
// removal ends a session.
package discovery
