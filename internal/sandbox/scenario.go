// Package sandbox is a scripted order backend. It serves the order and
// wallet endpoints the checkout rails call and answers captures according to
// a configurable scenario, so both rails can be exercised end to end without
// a payment provider account.
package sandbox

import (
	"fmt"
	"strings"

	apperrors "github.com/utafrali/paycheckout/pkg/errors"
)

// Scenario decides how the backend answers for an order.
type Scenario string

const (
	// ScenarioCompleted captures successfully.
	ScenarioCompleted Scenario = "completed"
	// ScenarioDeclined captures into a DECLINED transaction.
	ScenarioDeclined Scenario = "declined"
	// ScenarioInstrumentDeclined rejects the capture with INSTRUMENT_DECLINED
	// and leaves the order capturable for a restarted attempt.
	ScenarioInstrumentDeclined Scenario = "instrument_declined"
	// ScenarioCreateError rejects order creation.
	ScenarioCreateError Scenario = "create_error"
	// ScenarioCaptureError fails the capture with a server error.
	ScenarioCaptureError Scenario = "capture_error"
)

// Scenarios lists every scenario in a stable order.
func Scenarios() []Scenario {
	return []Scenario{
		ScenarioCompleted,
		ScenarioDeclined,
		ScenarioInstrumentDeclined,
		ScenarioCreateError,
		ScenarioCaptureError,
	}
}

// ParseScenario maps a name to a Scenario, ignoring case and surrounding space.
func ParseScenario(name string) (Scenario, error) {
	s := Scenario(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Scenarios() {
		if s == known {
			return s, nil
		}
	}
	return "", apperrors.InvalidInput(fmt.Sprintf("unknown sandbox scenario %q", name))
}
