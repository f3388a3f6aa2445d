// Package server exposes the conversion service over HTTP.
package server
