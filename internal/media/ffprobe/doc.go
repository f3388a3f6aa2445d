// Package ffprobe shells out to ffprobe to inspect media containers.
package ffprobe
