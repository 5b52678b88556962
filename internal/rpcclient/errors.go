package rpcclient

import "fmt"

// Kind is the RPC error taxonomy from spec.md §7 — a classification, not a
// Go type name, so callers branch on Kind rather than on the concrete
// error's dynamic type.
type Kind int

const (
	KindNetwork Kind = iota
	KindRateLimit
	KindAirdropRateLimit
	KindTransaction
	KindRequest
)

func (k Kind) tag() string {
	switch k {
	case KindNetwork, KindRateLimit:
		return "[RPC_NETWORK_ERROR]"
	case KindAirdropRateLimit:
		return "[RPC_AIRDROP_RATE_LIMITED]"
	case KindTransaction:
		return "[RPC_TRANSACTION_ERROR]"
	case KindRequest:
		return "[RPC_REQUEST_ERROR]"
	default:
		return ""
	}
}

// Retryable reports whether this kind of failure should be retried by
// withRetry (network and rate-limit kinds are; transaction/request are not).
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindRateLimit || k == KindAirdropRateLimit
}

// CountsTowardSimulation reports whether consecutive failures of this kind
// accumulate toward SIMULATION_FAILURE_THRESHOLD. Airdrop rate-limits are
// the one retryable kind that never does — the faucet, not connectivity,
// is the issue.
func (k Kind) CountsTowardSimulation() bool {
	return k == KindNetwork || k == KindRateLimit
}

// Error is the tagged error every RpcClient operation returns on failure.
// Its Error() string carries the bracketed [RPC_*] tag spec.md §7 mandates,
// while Kind lets callers branch with errors.As instead of string-sniffing.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind.tag(), e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
