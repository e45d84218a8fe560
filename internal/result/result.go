// Package result classifies capture responses. Both rails share it so a
// given response is judged the same way everywhere.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/utafrali/paycheckout/internal/domain"
)

// Kind is the classification of a capture response.
type Kind int

const (
	Success Kind = iota
	RecoverableDecline
	FatalError
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case RecoverableDecline:
		return "recoverable_decline"
	case FatalError:
		return "fatal_error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Input carries what the caller knows about the attempt.
type Input struct {
	// CardTokenUsed is true when the buyer paid with a vaulted card token,
	// which cannot be re-authorized by restarting.
	CardTokenUsed bool
	// CanRestart is true when the provider offered a restart hook.
	CanRestart bool
}

// Verdict is the classification plus everything needed to report it.
type Verdict struct {
	Kind        Kind
	Transaction *domain.Transaction
	Issue       string
	DebugID     string
	// Message is the operator/buyer text for a FatalError.
	Message string
}

// Err returns the domain sentinel for a non-success verdict.
func (v Verdict) Err() error {
	switch v.Kind {
	case RecoverableDecline:
		return domain.ErrRecoverableDecline
	case FatalError:
		return fmt.Errorf("%w: %s", domain.ErrFatalDecline, v.Message)
	default:
		return nil
	}
}

// Interpret classifies res. It is pure: same input, same verdict.
func Interpret(res *domain.CaptureResult, in Input) Verdict {
	if res == nil {
		return Verdict{Kind: FatalError, Message: "empty capture response"}
	}

	v := Verdict{Transaction: res.Transaction, DebugID: res.DebugID}
	detail := res.ErrorDetail
	if detail != nil {
		v.Issue = detail.Issue
	}

	if detail != nil && detail.Issue == domain.IssueInstrumentDeclined && !in.CardTokenUsed && in.CanRestart {
		v.Kind = RecoverableDecline
		return v
	}

	tx := res.Transaction
	if detail != nil || tx == nil || tx.Status == domain.TransactionDeclined {
		v.Kind = FatalError
		v.Message = fatalMessage(res)
		return v
	}

	v.Kind = Success
	return v
}

func fatalMessage(res *domain.CaptureResult) string {
	if tx := res.Transaction; tx != nil {
		return fmt.Sprintf("Transaction %s: %s", tx.Status, tx.ID)
	}
	if d := res.ErrorDetail; d != nil {
		return fmt.Sprintf("%s (%s)", d.Description, res.DebugID)
	}
	return rawMessage(res.Raw)
}

func rawMessage(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err == nil {
		return buf.String()
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return "empty capture response"
	}
	return string(bytes.TrimSpace(raw))
}
