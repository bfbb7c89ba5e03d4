// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// signalFields describes the per-signal header blocks in file order. Each
// block stores the field for every signal contiguously at a fixed width.
var signalFields = []struct {
	width  int
	assign func(sig *Signal, s string)
}{
	{16, func(sig *Signal, s string) { sig.Label = s }},
	{80, func(sig *Signal, s string) { sig.TransducerType = s }},
	{8, func(sig *Signal, s string) { sig.PhysicalDimension = s }},
	{8, func(sig *Signal, s string) { sig.PhysicalMin = parseFloat(s) }},
	{8, func(sig *Signal, s string) { sig.PhysicalMax = parseFloat(s) }},
	{8, func(sig *Signal, s string) { sig.DigitalMin = parseInt(s) }},
	{8, func(sig *Signal, s string) { sig.DigitalMax = parseInt(s) }},
	{80, func(sig *Signal, s string) { sig.Prefiltering = s }},
	{8, func(sig *Signal, s string) { sig.SamplesPerRecord = parseInt(s) }},
	{32, func(sig *Signal, s string) { sig.Reserved = s }},
}

// Reader reads EDF/EDF+ files.
type Reader struct {
	r   io.ReadSeeker
	hdr *Header
}

// Open opens an EDF/EDF+ file for reading.
func Open(r io.ReadSeeker) (*Reader, error) {
	br := bufio.NewReader(r)

	b := make([]byte, 256)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	// Parse fields based on EDF/EDF+ specifications.
	hdr := &Header{}
	hdr.Version = Version(strings.TrimSpace(string(b[0:8])))
	hdr.PatientID = strings.TrimSpace(string(b[8:88]))
	hdr.RecordingID = strings.TrimSpace(string(b[88:168]))

	startTime, err := parseStartTime(string(b[168:176]), string(b[176:184]))
	if err != nil {
		return nil, err
	}
	hdr.StartTime = startTime

	if hdr.HeaderBytes, err = strconv.Atoi(strings.TrimSpace(string(b[184:192]))); err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}
	if hdr.DataRecords, err = strconv.Atoi(strings.TrimSpace(string(b[236:244]))); err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}
	if hdr.DataRecordDuration, err = time.ParseDuration(strings.TrimSpace(string(b[244:252])) + "s"); err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}
	if hdr.SignalCount, err = strconv.Atoi(strings.TrimSpace(string(b[252:256]))); err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}

	// Read the per-signal header blocks.
	hdr.Signals = make([]Signal, hdr.SignalCount)
	for _, field := range signalFields {
		b := make([]byte, field.width)
		for i := range hdr.Signals {
			if _, err := io.ReadFull(br, b); err != nil {
				return nil, fmt.Errorf("error reading signal headers: %w", err)
			}
			field.assign(&hdr.Signals[i], strings.TrimSpace(string(b)))
		}
	}

	return &Reader{r: r, hdr: hdr}, nil
}

// Header returns the parsed file header.
func (er *Reader) Header() *Header {
	return er.hdr
}

// Signal creates a new SignalReader for a specified signal index.
func (er *Reader) Signal(signalIndex int) (*SignalReader, error) {
	if signalIndex < 0 || signalIndex >= len(er.hdr.Signals) {
		return nil, fmt.Errorf("signal index %d out of range", signalIndex)
	}

	recordSize := 0
	signalOffset := 0
	for i, sig := range er.hdr.Signals {
		if i < signalIndex {
			signalOffset += sig.SamplesPerRecord * 2
		}
		recordSize += sig.SamplesPerRecord * 2
	}

	sig := er.hdr.Signals[signalIndex]
	return &SignalReader{
		r:            er.r,
		hdr:          er.hdr,
		signalIndex:  signalIndex,
		recordSize:   recordSize,
		signalOffset: signalOffset,
		perRecord:    sig.SamplesPerRecord,
		buf:          make([]byte, sig.SamplesPerRecord*2),
		bufPos:       sig.SamplesPerRecord, // force a record load on first read
	}, nil
}

// ReadSignal reads the entire physical-valued time series for a signal.
func (er *Reader) ReadSignal(signalIndex int) ([]float64, error) {
	if er.hdr.DataRecords < 0 {
		return nil, fmt.Errorf("signal %d: unknown number of data records", signalIndex)
	}
	sr, err := er.Signal(signalIndex)
	if err != nil {
		return nil, err
	}
	data := make([]float64, er.hdr.SampleCount(signalIndex))
	n, err := sr.Read(data)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return data[:n], nil
}

// SignalReader reads continuous signal data from an EDF/EDF+ file.
type SignalReader struct {
	r            io.ReadSeeker
	hdr          *Header
	signalIndex  int
	recordSize   int    // total size of one data record in bytes
	signalOffset int    // byte offset of the signal within a record
	perRecord    int    // samples per record for this signal
	record       int    // next record to load
	buf          []byte // raw samples of the loaded record
	bufPos       int    // next sample within buf
}

// Read fills the provided float64 slice with the physical values from the
// signal. Whole data records are buffered, so sequential reads issue one
// seek per record rather than one per sample.
func (sr *SignalReader) Read(data []float64) (int, error) {
	sig := sr.hdr.Signals[sr.signalIndex]

	n := 0
	for n < len(data) {
		if sr.bufPos >= sr.perRecord {
			if sr.record >= sr.hdr.DataRecords {
				return n, io.EOF
			}
			pos := int64(sr.hdr.HeaderBytes) + int64(sr.record)*int64(sr.recordSize) + int64(sr.signalOffset)
			if _, err := sr.r.Seek(pos, io.SeekStart); err != nil {
				return n, fmt.Errorf("error seeking to record %d: %w", sr.record, err)
			}
			if _, err := io.ReadFull(sr.r, sr.buf); err != nil {
				return n, fmt.Errorf("error reading record %d: %w", sr.record, err)
			}
			sr.record++
			sr.bufPos = 0
		}

		digital := int16(binary.LittleEndian.Uint16(sr.buf[sr.bufPos*2:]))
		data[n] = convertDigitalToPhysical(digital, sig.DigitalMin, sig.DigitalMax, sig.PhysicalMin, sig.PhysicalMax)
		n++
		sr.bufPos++
	}

	return n, nil
}

// convertDigitalToPhysical converts a digital value from the data record to a physical value using the calibration factors.
func convertDigitalToPhysical(digital int16, dmin, dmax int, pmin, pmax float64) float64 {
	if dmax == dmin {
		return 0 // Avoid division by zero
	}
	return pmin + (float64(digital)-float64(dmin))*(pmax-pmin)/float64(dmax-dmin)
}

func parseStartTime(dateStr, timeStr string) (time.Time, error) {
	startDate, err := time.Parse("02.01.06", strings.TrimSpace(dateStr))
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing start date: %w", err)
	}
	startTime, err := time.Parse("15.04.05", strings.TrimSpace(timeStr))
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing start time: %w", err)
	}
	return time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC), nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	return f
}

func parseInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}
