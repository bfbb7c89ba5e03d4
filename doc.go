// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package beamform reconstructs M/EEG source activity from sensor
// recordings. It derives LCMV beamformer filters and minimum-norm inverse
// operators from a sensor covariance and a precomputed forward operator,
// with explicit handling of rank-deficient covariances: diagonal loading,
// truncated pseudo-inversion at a caller-supplied rank, or spatial
// whitening against a noise covariance.
//
// The package does not compute forward models and does not plot; forward
// operators are inputs (see the forward package) and source estimates are
// plain matrices for downstream visualization.
package beamform
