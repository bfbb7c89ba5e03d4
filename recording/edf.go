// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package recording

import (
	"fmt"
	"io"
	"strings"

	"github.com/OpenPSG/beamform/edf"
	"gonum.org/v1/gonum/mat"
)

// ReadEDF loads an EDF/EDF+ file into a Recording. Channel kinds are
// inferred from the EDF labels and physical dimensions; all signals must
// share one sampling rate so the samples align into a single matrix.
func ReadEDF(r io.ReadSeeker) (*Recording, error) {
	er, err := edf.Open(r)
	if err != nil {
		return nil, fmt.Errorf("error opening EDF: %w", err)
	}
	hdr := er.Header()
	if hdr.DataRecords < 0 {
		return nil, fmt.Errorf("EDF file has an unknown number of data records")
	}
	if hdr.SignalCount == 0 {
		return nil, fmt.Errorf("EDF file has no signals")
	}

	rate := hdr.SampleRate(0)
	for i := 1; i < hdr.SignalCount; i++ {
		if hdr.SampleRate(i) != rate {
			return nil, fmt.Errorf("signal %q sampled at %v Hz, expected %v Hz",
				hdr.Signals[i].Label, hdr.SampleRate(i), rate)
		}
	}

	channels := make([]Channel, hdr.SignalCount)
	data := mat.NewDense(hdr.SignalCount, hdr.SampleCount(0), nil)
	for i, sig := range hdr.Signals {
		channels[i] = Channel{
			Name: sig.Label,
			Kind: channelKind(sig),
			Unit: sig.PhysicalDimension,
		}
		samples, err := er.ReadSignal(i)
		if err != nil {
			return nil, fmt.Errorf("error reading signal %q: %w", sig.Label, err)
		}
		data.SetRow(i, samples)
	}

	return New(channels, rate, data)
}

// channelKind infers the sensor behind an EDF signal from its label and
// physical dimension.
func channelKind(sig edf.Signal) ChannelKind {
	label := strings.ToUpper(sig.Label)
	switch {
	case strings.HasPrefix(label, "STI"), strings.HasPrefix(label, "TRIG"), label == "STATUS":
		return Trigger
	case strings.HasPrefix(label, "EEG"):
		return EEG
	case strings.HasPrefix(label, "MEG"):
		// Gradiometers measure a field difference over a baseline and
		// report a per-distance unit, e.g. fT/cm.
		if strings.Contains(sig.PhysicalDimension, "/") {
			return Gradiometer
		}
		return Magnetometer
	default:
		return Misc
	}
}
