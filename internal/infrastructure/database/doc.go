// Package database provides the SQLite connection and migration runner for
// the audio node.
//
// The node persists very little: routing preferences (which outputs a device
// should be linked to on connect, and at what volume). Device pairing and
// trust live in the BlueZ store, and the live registries are in-memory, so
// the database is small and write-light. SQLite in WAL mode with a single
// writer connection is more than enough.
//
// Schema changes are shipped as embedded SQL files in the migrations
// package and applied on startup, each in its own transaction.
package database
