package config

import (
	"os"
	"strings"
)

// AiCategorizationEnabled is the platform-wide kill switch for the external
// suggestion service. Per-church opt-in lives on church_settings; both must
// be on for the AI tier to run.
//
// Set via env:
// - AI_CATEGORIZATION=false
func AiCategorizationEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("AI_CATEGORIZATION")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// OutboxDirectProcessing controls whether the in-process dispatcher publishes
// ledger events directly instead of (or alongside) Pub/Sub delivery.
//
// Set via env:
// - OUTBOX_DIRECT_PROCESSING=true|false
func OutboxDirectProcessing() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DIRECT_PROCESSING")))
	if v == "true" {
		return true
	}
	if v == "false" {
		return false
	}
	// Default: run as a safety net even when Pub/Sub is configured, so
	// ledger events are never stuck when delivery is misconfigured.
	return true
}
