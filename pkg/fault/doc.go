/*
Package fault defines the error kinds surfaced by the Quiver coordinator.

Every client-visible failure carries exactly one Kind: not_found,
dimension_mismatch, unavailable, timeout, invalid_config, conflict, protocol,
or internal. Kinds travel through error chains via errors.As, so callers can
wrap a fault with fmt.Errorf("%w") without losing classification:

	if fault.Is(err, fault.KindNotFound) {
		// 404
	}

Errors that never cross the API boundary use plain fmt.Errorf wrapping.
*/
package fault
