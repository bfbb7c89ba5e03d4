// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package beamform_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/OpenPSG/beamform"
	"github.com/OpenPSG/beamform/cov"
	"github.com/OpenPSG/beamform/recording"
)

func TestPooledCovarianceEqualDuration(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	op := simOperator(t, rng, 10, 4, 1, recording.RefRecorded)

	// Condition B has more trials; pooling must truncate to equal
	// duration and be order independent.
	a := simulateEpochs(op, 0, nil, 5, 400, 1.0, 0.1, rng)
	b := simulateEpochs(op, 3, nil, 8, 400, 1.0, 0.1, rng)
	tmax := windowEnd(a)

	ab, err := beamform.PooledCovariance(a, b, 0, tmax)
	require.NoError(t, err)
	ba, err := beamform.PooledCovariance(b, a, 0, tmax)
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(ab.Sym, ba.Sym, 1e-12))
	assert.Equal(t, 2*5*400, ab.N)
}

func TestContrastOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	op := simOperator(t, rng, 12, 5, 1, recording.RefRecorded)

	const srcA, srcB = 1, 4
	a := simulateEpochs(op, srcA, nil, 6, 400, 1.0, 0.1, rng)
	b := simulateEpochs(op, srcB, nil, 6, 400, 1.0, 0.1, rng)
	tmax := windowEnd(a)

	pooled, err := beamform.PooledCovariance(a, b, 0, tmax)
	require.NoError(t, err)

	// One filter, derived once from the pooled covariance.
	f, err := beamform.LCMV(op, pooled, beamform.LCMVOptions{
		Reg: beamform.DiagonalLoading(beamform.DefaultLambda),
	})
	require.NoError(t, err)

	ca, err := cov.Compute(a, 0, tmax)
	require.NoError(t, err)
	cb, err := cov.Compute(b, 0, tmax)
	require.NoError(t, err)

	fwd, err := f.Contrast(ca, cb)
	require.NoError(t, err)
	rev, err := f.Contrast(cb, ca)
	require.NoError(t, err)

	// Swapping the condition order swaps the outputs and nothing else.
	assert.Equal(t, fwd.PowerA, rev.PowerB)
	assert.Equal(t, fwd.PowerB, rev.PowerA)
	for i := range fwd.LogRatio {
		assert.InDelta(t, -rev.LogRatio[i], fwd.LogRatio[i], 1e-12)
	}

	// The contrast points at the right sources.
	assert.Equal(t, srcA, argmax(fwd.LogRatio))
	assert.Equal(t, srcB, argmax(rev.LogRatio))
}

func TestContrastValidatesChannels(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	op := simOperator(t, rng, 6, 3, 1, recording.RefRecorded)

	e := simulateEpochs(op, 0, nil, 4, 300, 1.0, 0.1, rng)
	tmax := windowEnd(e)
	c, err := cov.Compute(e, 0, tmax)
	require.NoError(t, err)

	f, err := beamform.LCMV(op, c, beamform.LCMVOptions{
		Reg: beamform.DiagonalLoading(beamform.DefaultLambda),
	})
	require.NoError(t, err)

	other := simulateEpochs(op, 1, nil, 4, 300, 1.0, 0.1, rng)
	other.Channels[0].Name = "EEG 999"
	oc, err := cov.Compute(other, 0, tmax)
	require.NoError(t, err)

	_, err = f.Contrast(c, oc)
	require.ErrorIs(t, err, beamform.ErrChannelMismatch)
}
