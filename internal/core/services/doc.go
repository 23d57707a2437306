// Package services implements the driving port interfaces.
// Services contain the pipeline and scheduling logic and orchestrate
// calls to driven ports (adapters).
//
// Services never touch the network or the filesystem directly.
package services
