// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package beamform

import "errors"

var (
	// ErrSingularCovariance means the covariance matrix cannot be
	// inverted as-is. Apply diagonal loading, a truncated pseudo-inverse
	// at a known rank, or set AllowRankDeficient to accept a fallback.
	ErrSingularCovariance = errors.New("singular covariance matrix")

	// ErrSingularLeadfield means a source's leadfield block is linearly
	// dependent and no orientation can be resolved there.
	ErrSingularLeadfield = errors.New("singular leadfield")

	// ErrReferenceMismatch means the data and the forward operator use
	// different reference schemes; source estimates would be invalid.
	ErrReferenceMismatch = errors.New("reference mismatch between data and forward operator")

	// ErrChannelMismatch means the data and the forward operator disagree
	// on the channel set or order.
	ErrChannelMismatch = errors.New("channel mismatch between data and forward operator")
)
