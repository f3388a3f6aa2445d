// Package encoding drives ffmpeg to transcode uploads into VP9/Opus WebM and
// translates encode activity into job progress updates.
package encoding
