// Package database provides connection pool management for TimescaleDB.
//
// Only outer sinks (the recorder) use the database. The chain bridge and
// stream hub keep no persistent state.
package database
