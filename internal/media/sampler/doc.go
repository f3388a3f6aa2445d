// Package sampler estimates a video's dominant background color by averaging
// small corner patches from a handful of frames.
package sampler
