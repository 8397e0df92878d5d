// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the three execution modes (one-shot
// evaluation, static validation and the webhook server), decoupled from any
// specific entrypoint like a CLI.
package app
