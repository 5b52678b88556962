// Package market supplies the MarketData every Agent tick reads. The
// default implementation is a self-contained simulated feed; a live feed
// can be swapped in behind the same Provider interface.
package market

import "github.com/autarch/runtime/pkg/models"

// Provider is the read boundary every Agent and the RuleEngine's
// FieldResolver consume. Snapshot must return a defensive copy — callers
// never observe a value that later mutates out from under them.
type Provider interface {
	Snapshot() models.MarketData
}

// Controllable is implemented by providers that accept the demo
// market-control endpoints (`/api/market/dip`, `/rally`, `/reset`).
// A live feed intentionally does not implement this — injecting a fake
// dip into a real price feed would be a lie, not a demo.
type Controllable interface {
	Provider
	InjectDip(pct float64)
	InjectRally(pct float64)
	Reset()
}
