// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import "time"

// Timeout constants for the safety framework.
//
// These prevent accidental infinite hangs while leaving room for
// legitimately slow work such as network package installs.
const (
	// MinActionTimeout is the absolute minimum deadline for any action.
	MinActionTimeout = 5 * time.Second

	// DefaultActionTimeout is the deadline applied when callers do not
	// override it. Conservative: apt/brew installs over slow links can
	// take a long time, and a premature timeout triggers a rollback.
	DefaultActionTimeout = 30 * time.Minute

	// RestoreTimeout bounds the whole rollback pass. Restores are local
	// file copies, so this is generous.
	RestoreTimeout = 5 * time.Minute
)

// EnforceMinTimeout returns at least the minimum timeout.
//
// Zero, negative, and below-minimum values all collapse to the minimum
// so misconfiguration cannot disable the deadline entirely.
func EnforceMinTimeout(requested, minimum time.Duration) time.Duration {
	if requested <= 0 || requested < minimum {
		return minimum
	}
	return requested
}
