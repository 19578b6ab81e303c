// Package pairing implements the one-time trust exchange between the hub
// and a QuickBars TV.
//
// Pairing is two calls. BeginPairing asks the TV to display a code and
// remembers the challenge id it returns. Pair submits the code the user
// read off the screen, generates a long-lived credential and hands it to
// the TV together with the hub's URL.
//
// Before any network call, Pair and BeginPairing check that the hub's
// base URL is not a loopback address, because the TV could never reach it.
// Reachability of the TV is checked with a bounded ping; failure is
// reported as device.ErrUnreachable.
//
// Codes, challenge ids and tokens never appear unmasked in logs.
package pairing
