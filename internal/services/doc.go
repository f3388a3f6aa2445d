// Package services defines the error classification shared by components
// that talk to external tools and storage.
package services
