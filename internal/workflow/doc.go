// Package workflow coordinates the lifecycle of a conversion job from
// accepted upload to terminal status.
package workflow
