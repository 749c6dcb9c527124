package license

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// PlanType identifies a subscription tier
type PlanType string

const (
	PlanTrial   PlanType = "trial"
	PlanMonthly PlanType = "monthly"
	PlanYearly  PlanType = "yearly"
)

// Plan describes a subscription tier and the validity window it grants
type Plan struct {
	Type     PlanType
	Name     string
	Price    string
	Duration time.Duration
}

var plans = map[PlanType]Plan{
	PlanTrial:   {Type: PlanTrial, Name: "7-Day Trial", Price: "Free", Duration: 7 * 24 * time.Hour},
	PlanMonthly: {Type: PlanMonthly, Name: "Monthly Plan", Price: "$4.99/month", Duration: 30 * 24 * time.Hour},
	PlanYearly:  {Type: PlanYearly, Name: "Yearly Plan", Price: "$49.99/year", Duration: 365 * 24 * time.Hour},
}

// PlanByType resolves a plan identifier, case-insensitively
func PlanByType(t string) (Plan, bool) {
	p, ok := plans[PlanType(strings.ToLower(strings.TrimSpace(t)))]
	return p, ok
}

// PaidPlanTypes lists the tiers a machine may hold after its trial is spent
func PaidPlanTypes() []string {
	return []string{string(PlanMonthly), string(PlanYearly)}
}

// NewLicenseID mints a customer-facing license identifier of the form
// LIC-XXXXXXXXXXXX (12 uppercase hex characters).
func NewLicenseID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return "LIC-" + strings.ToUpper(hex.EncodeToString(buf))
}
