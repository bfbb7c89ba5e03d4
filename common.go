// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package beamform

import (
	"fmt"
	"math"

	"github.com/OpenPSG/beamform/cov"
	"github.com/OpenPSG/beamform/recording"
)

// PooledCovariance estimates one covariance from equal-duration data of
// two conditions over the same window: both conditions are truncated to
// the smaller epoch count before their covariances are averaged. A filter
// derived from the pooled covariance can then contrast the conditions
// without filter mismatch.
func PooledCovariance(a, b *recording.Epochs, tmin, tmax float64) (*cov.Matrix, error) {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	sa, err := a.Subset(n)
	if err != nil {
		return nil, err
	}
	sb, err := b.Subset(n)
	if err != nil {
		return nil, err
	}
	ca, err := cov.Compute(sa, tmin, tmax)
	if err != nil {
		return nil, fmt.Errorf("condition A covariance: %w", err)
	}
	cb, err := cov.Compute(sb, tmin, tmax)
	if err != nil {
		return nil, fmt.Errorf("condition B covariance: %w", err)
	}
	return cov.Pool(ca, cb)
}

// ContrastResult holds per-source power of two conditions seen through
// one common spatial filter.
type ContrastResult struct {
	PowerA, PowerB []float64

	// LogRatio is log10(PowerA/PowerB) per source; positive favors A.
	LogRatio []float64
}

// Contrast applies one filter, derived once from a pooled covariance, to
// each condition's own covariance. The same filter is reused verbatim for
// both conditions; deriving separate filters per condition would introduce
// spurious differences from filter mismatch rather than true signal
// differences.
func (f *Filter) Contrast(ca, cb *cov.Matrix) (*ContrastResult, error) {
	pa, err := f.ApplyCov(ca)
	if err != nil {
		return nil, fmt.Errorf("condition A: %w", err)
	}
	pb, err := f.ApplyCov(cb)
	if err != nil {
		return nil, fmt.Errorf("condition B: %w", err)
	}

	ratio := make([]float64, len(pa))
	for i := range ratio {
		ratio[i] = math.Log10(pa[i] / pb[i])
	}
	return &ContrastResult{PowerA: pa, PowerB: pb, LogRatio: ratio}, nil
}
