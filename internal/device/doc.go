// Package device provides the Device Registry for the QuickBars hub.
//
// The registry is the single shared mutable structure of the hub: it maps
// each paired TV to its Device record and its Session (credential plus open
// channel). All inserts, removals and lookups are serialised through it.
//
// # Key Types
//
//   - Device: a paired TV, its address, channel state and capabilities
//   - Session: the credential and channel handle owned by one Device
//   - SavedEntity: an entity alias binding reported by the TV
//   - Repository: persistence for devices, credentials and saved entities
//
// # Errors
//
// errors.go holds the error taxonomy shared by pairing, channel and
// command dispatch. Callers branch on it with errors.Is.
//
// # Usage
//
//	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
//	registry.SetLogger(log)
//
//	if err := registry.Register(ctx, dev, session); err != nil {
//	    return err
//	}
//	dev, ch, err := registry.Lookup(id)
package device
