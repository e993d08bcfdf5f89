package aiclient

import "errors"

// ErrNotConfigured is returned before any network attempt when no endpoint
// is configured.
var ErrNotConfigured = errors.New("ai client: endpoint not configured")

// Outcome tags the result of one provider call.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeCircuitOpen means the call was rejected without network I/O.
	OutcomeCircuitOpen
	// OutcomeProviderFailure covers transport errors after the retry,
	// non-2xx status, undecodable JSON, a missing response path and an
	// empty mapping.
	OutcomeProviderFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeCircuitOpen:
		return "circuit_open"
	default:
		return "provider_failure"
	}
}

// BatchResult is the tagged result of GenerateBatch. Alts is non-nil only
// for OutcomeOK and holds sanitized text keyed by image source url.
type BatchResult struct {
	Outcome Outcome
	Alts    map[string]string
	Reason  string
	Model   string
	// BreakerOpened is set on the failure that transitioned the breaker to open.
	BreakerOpened bool
}

// OK reports whether the provider produced at least one alt text.
func (r BatchResult) OK() bool {
	return r.Outcome == OutcomeOK && len(r.Alts) > 0
}

// OneResult is the tagged result of GenerateOne.
type OneResult struct {
	Outcome       Outcome
	Text          string
	Reason        string
	Model         string
	BreakerOpened bool
}
