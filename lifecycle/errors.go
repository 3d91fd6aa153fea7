// SPDX-License-Identifier: GPL-3.0-only

package lifecycle

import (
	"errors"

	"accfleet-server/store"
)

var (
	// ErrInvalidIdentity means the phone number does not match the canonical
	// +<countrycode><digits> form.
	ErrInvalidIdentity = errors.New("invalid phone identity")
	// ErrAlreadyEnrolled means the identity is already in the store. Callers
	// may treat this as non-fatal.
	ErrAlreadyEnrolled = errors.New("account already enrolled")
	// ErrNotFound mirrors the store sentinel for callers of the controller.
	ErrNotFound = store.ErrNotFound
)
