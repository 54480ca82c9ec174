package regmap

import (
	"maps"

	"airsense-go/errcode"
)

// Transport is the byte-level bus capability the framework consumes but does
// not implement. Calls block until the bus transaction completes or fails;
// deadlines belong to the transport, retry policy to the caller. Failures
// are returned as-is and are never retried here.
type Transport interface {
	ReadRegister(reg uint8, n int) ([]byte, error)
	WriteRegister(reg uint8, payload []byte) error
}

// Access is the per-register read/write facade. It owns the register's value
// cache: a mutable map from field name to last-known decoded value, nil
// until the first successful read. One Access per register per physical
// device; a single logical caller must drive it (no internal locking).
type Access struct {
	reg   *Register
	tr    Transport
	cache Values
}

// NewAccess binds a register from a Device descriptor to a transport.
func NewAccess(reg *Register, tr Transport) *Access {
	return &Access{reg: reg, tr: tr}
}

// Register returns the bound register descriptor.
func (a *Access) Register() *Register { return a.reg }

// Read returns the register's decoded field values.
//
// The one caching policy: a non-volatile register that has been read at
// least once is served from cache without touching the transport, unless
// ignoreCache forces a bus read. Volatile registers always hit the bus.
// On a successful read the cache is replaced wholesale; a failed decode
// leaves it untouched.
func (a *Access) Read(ignoreCache bool) (Values, error) {
	if a.reg.WriteOnly {
		return nil, errcode.New(errcode.Unsupported, "regmap: "+a.reg.Name, "register is write only")
	}
	if a.reg.NonVolatile && a.cache != nil && !ignoreCache {
		return maps.Clone(a.cache), nil
	}
	raw, err := a.tr.ReadRegister(a.reg.Addr, a.reg.Size())
	if err != nil {
		return nil, err
	}
	vals, err := a.reg.DecodeAll(raw)
	if err != nil {
		return nil, err
	}
	a.cache = vals
	return maps.Clone(vals), nil
}

// Write encodes the supplied field values and writes the payload. Encoding
// or validation failures happen before any transport I/O. The cache is left
// for the next read to refresh; use WriteCached when the written state
// cannot change asynchronously.
func (a *Access) Write(vals Values) error {
	raw, err := a.encode(vals)
	if err != nil {
		return err
	}
	return a.tr.WriteRegister(a.reg.Addr, raw)
}

// WriteCached is Write plus an optimistic cache update with the values just
// written, so a subsequent read of a slow register can be skipped. Not for
// registers whose hardware state changes on its own (e.g. measurement
// triggers).
func (a *Access) WriteCached(vals Values) error {
	raw, err := a.encode(vals)
	if err != nil {
		return err
	}
	if err := a.tr.WriteRegister(a.reg.Addr, raw); err != nil {
		return err
	}
	if a.reg.WriteOnly {
		// Write-only registers carry no cache.
		return nil
	}
	if a.cache == nil {
		a.cache = make(Values, len(vals))
	}
	for k, v := range vals {
		a.cache[k] = v
	}
	return nil
}

func (a *Access) encode(vals Values) ([]byte, error) {
	if a.reg.ReadOnly {
		return nil, errcode.New(errcode.Unsupported, "regmap: "+a.reg.Name, "register is read only")
	}
	return a.reg.EncodeFields(vals)
}

// Cached returns the last-known values without touching the transport, and
// whether any read has populated them.
func (a *Access) Cached() (Values, bool) {
	if a.cache == nil {
		return nil, false
	}
	return maps.Clone(a.cache), true
}

// Invalidate resets the cache to unknown. The caller's retry policy invokes
// it after exhausting retries so stale values are never reported as fresh.
func (a *Access) Invalidate() { a.cache = nil }
