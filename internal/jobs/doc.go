// Package jobs persists conversion job records. Each job is one independent
// SQLite row; the store is the durability layer that lets status queries
// survive a process restart, not a concurrency primitive.
package jobs
