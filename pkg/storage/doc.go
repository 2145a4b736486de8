/*
Package storage provides BoltDB-backed persistence for goals, strategies,
audits and action plans.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                          │
	│  BoltStore                                               │
	│    file: <dataDir>/rebalancer.db                         │
	│                                                          │
	│  Buckets (JSON values)                                   │
	│    goals          key: goal name                         │
	│    strategies     key: strategy name                     │
	│    audits         key: audit id                          │
	│    action_plans   key: plan id                           │
	│                                                          │
	│  Reads: db.View()    concurrent                          │
	│  Writes: db.Update() serialized, fsync on commit         │
	└──────────────────────────────────────────────────────────┘

# Semantics

Goals and strategies are upserted by name so the catalog sync can run on
every start. Audits and action plans are created once (a second create
returns errdefs.ErrAlreadyExists) and updated in place.

Deletes are soft: the record keeps its data with DeletedAt set. Get
returns an error satisfying errdefs.IsNotFound and List skips the record.
Putting a goal or strategy again revives it.

The store holds no business rules. State transitions, plan supersession and
strategy selection live in the audit package.

# Usage

	store, err := storage.NewBoltStore("/var/lib/rebalancer")
	if err != nil {
		return err
	}
	defer store.Close()

	audit, err := store.GetAudit(id)
	if errdefs.IsNotFound(err) {
		// unknown or deleted
	}
*/
package storage
