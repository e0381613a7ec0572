// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by hostsync.
//
// Two places in hostsync depend on wall-clock time in a way tests need
// to control: signed call envelopes carry an expiry derived from Now,
// and the conductor dial loop waits between attempts. Both take a
// Clock instead of calling the time package directly.
//
// Production code injects Real(). Tests inject Fake(), which stands
// still until Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go dialLoop(ctx, c)
//	c.WaitForWaiters(1)      // dial loop is sleeping between attempts
//	c.Advance(2 * time.Second) // release it deterministically
package clock
