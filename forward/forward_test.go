// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package forward_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/OpenPSG/beamform/forward"
	"github.com/OpenPSG/beamform/recording"
)

func testOperator(t *testing.T) *forward.Operator {
	t.Helper()

	names := []string{"EEG Fpz", "EEG Cz", "EEG Oz"}
	positions := [][3]float64{
		{0.01, 0.02, 0.08},
		{-0.03, 0.01, 0.07},
	}
	gain := mat.NewDense(3, 6, []float64{
		0.5, 0.1, -0.2, 0.0, 0.3, 0.1,
		-0.1, 0.4, 0.2, 0.2, -0.3, 0.0,
		0.0, -0.2, 0.6, -0.1, 0.1, 0.5,
	})
	op, err := forward.New(names, recording.RefAverage, 3, positions, gain)
	require.NoError(t, err)
	return op
}

func TestRoundTrip(t *testing.T) {
	op := testOperator(t)

	var buf bytes.Buffer
	require.NoError(t, forward.Write(&buf, op))

	got, err := forward.Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, op.ChannelNames, got.ChannelNames)
	assert.Equal(t, recording.RefAverage, got.Reference)
	assert.Equal(t, 3, got.Components)
	assert.Equal(t, op.Positions, got.Positions)
	assert.True(t, mat.Equal(op.Gain, got.Gain))
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := forward.Read(bytes.NewReader([]byte("EDF0not a forward file")))
	require.Error(t, err)

	_, err = forward.Read(bytes.NewReader(nil))
	require.Error(t, err)
}

func TestSourceGain(t *testing.T) {
	op := testOperator(t)

	l := op.SourceGain(1)
	rows, cols := l.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, op.Gain.At(0, 3), l.At(0, 0))
	assert.Equal(t, 2, op.Sources())
	assert.Equal(t, 3, op.Channels())
}

func TestPick(t *testing.T) {
	op := testOperator(t)

	picked, err := op.Pick([]string{"EEG Oz", "EEG Fpz"})
	require.NoError(t, err)
	assert.Equal(t, []string{"EEG Oz", "EEG Fpz"}, picked.ChannelNames)
	assert.Equal(t, op.Gain.At(2, 4), picked.Gain.At(0, 4))
	assert.Equal(t, op.Gain.At(0, 4), picked.Gain.At(1, 4))

	_, err = op.Pick([]string{"MEG 0113"})
	require.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	names := []string{"EEG Fpz", "EEG Cz"}
	positions := [][3]float64{{0, 0, 0.1}}

	// Bad component count.
	_, err := forward.New(names, recording.RefRecorded, 2, positions, mat.NewDense(2, 2, nil))
	require.Error(t, err)

	// Row/channel mismatch.
	_, err = forward.New(names, recording.RefRecorded, 1, positions, mat.NewDense(3, 1, nil))
	require.Error(t, err)

	// Column/source mismatch.
	_, err = forward.New(names, recording.RefRecorded, 3, positions, mat.NewDense(2, 6, nil))
	require.NoError(t, err)
	_, err = forward.New(names, recording.RefRecorded, 3, positions, mat.NewDense(2, 5, nil))
	require.Error(t, err)
}
