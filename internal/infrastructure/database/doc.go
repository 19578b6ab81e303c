// Package database provides SQLite connectivity and schema migrations for the hub.
//
// The hub persists paired devices and their credentials, the saved-entity
// alias bindings reported by each TV, and an audit trail of action events.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the top-level migrations package and applied
// in filename order, one transaction per file.
package database
