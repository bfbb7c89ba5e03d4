// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package cov_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/OpenPSG/beamform/cov"
	"github.com/OpenPSG/beamform/recording"
)

func testChannels(n int) []recording.Channel {
	channels := make([]recording.Channel, n)
	for i := range channels {
		channels[i] = recording.Channel{Name: fmt.Sprintf("EEG %03d", i), Kind: recording.EEG, Unit: "uV"}
	}
	return channels
}

// randomEpochs builds an epoch collection of white noise, optionally
// confined to a subspace of the given dimension.
func randomEpochs(t *testing.T, nch, nepochs, samples, dim int, seed int64) *recording.Epochs {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))

	var mixing *mat.Dense
	if dim < nch {
		mixing = mat.NewDense(nch, dim, nil)
		for i := 0; i < nch; i++ {
			for j := 0; j < dim; j++ {
				mixing.Set(i, j, rng.NormFloat64())
			}
		}
	}

	e := &recording.Epochs{
		Channels:   testChannels(nch),
		SampleRate: 100,
		TMin:       0,
	}
	for k := 0; k < nepochs; k++ {
		var epoch *mat.Dense
		if mixing == nil {
			epoch = mat.NewDense(nch, samples, nil)
			for i := 0; i < nch; i++ {
				for j := 0; j < samples; j++ {
					epoch.Set(i, j, rng.NormFloat64())
				}
			}
		} else {
			latent := mat.NewDense(dim, samples, nil)
			for i := 0; i < dim; i++ {
				for j := 0; j < samples; j++ {
					latent.Set(i, j, rng.NormFloat64())
				}
			}
			epoch = mat.NewDense(nch, samples, nil)
			epoch.Mul(mixing, latent)
		}
		e.Data = append(e.Data, epoch)
		e.Codes = append(e.Codes, 1)
	}
	return e
}

func TestComputeSymmetricPSD(t *testing.T) {
	e := randomEpochs(t, 8, 5, 200, 8, 1)
	m, err := cov.Compute(e, 0, 1.99)
	require.NoError(t, err)

	require.Equal(t, 8, m.Dim())
	assert.Equal(t, recording.RefRecorded, m.Reference)
	assert.Equal(t, 5*200, m.N)

	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			assert.Equal(t, m.Sym.At(i, j), m.Sym.At(j, i))
		}
	}

	var eig mat.EigenSym
	require.True(t, eig.Factorize(m.Sym, false))
	for _, v := range eig.Values(nil) {
		assert.GreaterOrEqual(t, v, -1e-10)
	}

	// White unit-variance noise: diagonal near 1.
	for i := 0; i < 8; i++ {
		assert.InDelta(t, 1, m.Sym.At(i, i), 0.15)
	}
}

func TestComputeWindow(t *testing.T) {
	e := randomEpochs(t, 4, 3, 100, 4, 2)

	_, err := cov.Compute(e, 0, 2)
	require.Error(t, err, "window past the epoch end")

	_, err = cov.Compute(e, 0.5, 0.5)
	require.Error(t, err, "empty window")

	m, err := cov.Compute(e, 0.25, 0.75)
	require.NoError(t, err)
	assert.Equal(t, 3*51, m.N)
}

func TestRankDeficiency(t *testing.T) {
	// 60 channels with 2 degrees of freedom removed: rank must be
	// exactly 58, the deficiency exactly channels minus rank.
	e := randomEpochs(t, 60, 4, 500, 58, 3)
	m, err := cov.Compute(e, 0, 4.99)
	require.NoError(t, err)

	rank, err := cov.EstimateRank(m, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 58, rank)
	assert.Equal(t, 2, m.Dim()-rank)

	s := m.SingularValues()
	require.Len(t, s, 60)
	assert.Greater(t, s[0], s[59])
}

func TestFullRank(t *testing.T) {
	e := randomEpochs(t, 10, 4, 300, 10, 4)
	m, err := cov.Compute(e, 0, 2.99)
	require.NoError(t, err)

	rank, err := cov.EstimateRank(m, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, rank)
}

func TestAmbiguousRank(t *testing.T) {
	// Two physical scales in one covariance, e.g. magnetometers next to
	// gradiometers: a cliff inside the spectrum plus the numerical floor
	// gives two plausible ranks. That choice belongs to the caller.
	n := 40
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		v := 1.0
		if i >= 20 {
			v = 1e-5
		}
		sym.SetSym(i, i, v)
	}
	m := &cov.Matrix{Sym: sym, Names: make([]string, n), N: 1000}

	_, err := cov.EstimateRank(m, 0, 0)
	require.Error(t, err)

	var ambiguous *cov.AmbiguousRankError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, []int{20, 40}, ambiguous.Candidates)
	assert.Len(t, ambiguous.Spectrum, n)
}

func TestWhitener(t *testing.T) {
	e := randomEpochs(t, 6, 4, 400, 6, 5)
	noise, err := cov.Compute(e, 0, 3.99)
	require.NoError(t, err)

	w, err := cov.NewWhitener(noise, 0)
	require.NoError(t, err)
	require.Equal(t, 6, w.Rank)

	// Whitening its own covariance yields the identity.
	white, err := w.ApplyCov(noise)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, white.Sym.At(i, j), 1e-9)
		}
	}

	// Data dimensions flow through.
	out, err := w.Apply(e.Data[0])
	require.NoError(t, err)
	rows, cols := out.Dims()
	assert.Equal(t, 6, rows)
	assert.Equal(t, 400, cols)

	_, err = w.Apply(mat.NewDense(5, 10, nil))
	require.Error(t, err)

	_, err = cov.NewWhitener(noise, 7)
	require.Error(t, err)
}

func TestWhitenerRankDeficientNoise(t *testing.T) {
	e := randomEpochs(t, 6, 4, 400, 4, 6)
	noise, err := cov.Compute(e, 0, 3.99)
	require.NoError(t, err)

	// Full rank is unavailable.
	_, err = cov.NewWhitener(noise, 6)
	require.Error(t, err)

	w, err := cov.NewWhitener(noise, 4)
	require.NoError(t, err)

	white, err := w.ApplyCov(noise)
	require.NoError(t, err)
	require.Equal(t, 4, white.Dim())
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 1, white.Sym.At(i, i), 1e-9)
	}
}

func TestPoolValidation(t *testing.T) {
	a := randomEpochs(t, 4, 3, 100, 4, 7)
	b := randomEpochs(t, 4, 3, 100, 4, 8)

	ca, err := cov.Compute(a, 0, 0.99)
	require.NoError(t, err)
	cb, err := cov.Compute(b, 0, 0.99)
	require.NoError(t, err)

	pooled, err := cov.Pool(ca, cb)
	require.NoError(t, err)
	assert.Equal(t, ca.N+cb.N, pooled.N)
	assert.InDelta(t, (ca.Sym.At(1, 2)+cb.Sym.At(1, 2))/2, pooled.Sym.At(1, 2), 1e-12)

	// Unequal durations are rejected.
	short, err := cov.Compute(b, 0, 0.49)
	require.NoError(t, err)
	_, err = cov.Pool(ca, short)
	require.Error(t, err)
}
