package config

import (
	"os"
	"strings"
)

// RequireAgentPayment gates round-robin eligibility on the agent's
// subscription state. Disable for sandbox environments where no payment
// provider is wired up.
//
// Set via env:
// - REQUIRE_AGENT_PAYMENT=false
func RequireAgentPayment() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("REQUIRE_AGENT_PAYMENT")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// AutoAssignOnSubmit controls whether a newly submitted service request
// immediately attempts allocation, or stays open for the requeue job.
//
// Set via env:
// - AUTO_ASSIGN_ON_SUBMIT=false
func AutoAssignOnSubmit() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("AUTO_ASSIGN_ON_SUBMIT")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
