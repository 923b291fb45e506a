// ===========================================================================
//
//                            PUBLIC DOMAIN NOTICE
//            National Center for Biotechnology Information (NCBI)
//
//  Portions of this file are adapted from NCBI's EDirect performance-tuning
//  routines, which are a United States Government Work under the terms of
//  the United States Copyright Act and are freely available to the public.
//
// ===========================================================================

// Package tuning derives worker-pool sizes and channel depths from the
// host's CPU topology and available memory, the way the teacher corpus
// sizes its goroutine farms from runtime.NumCPU, klauspost/cpuid, and
// pbnjay/memory rather than from a fixed constant.
package tuning

import (
	"runtime"
	"runtime/debug"

	"github.com/klauspost/cpuid/v2"
	"github.com/pbnjay/memory"
)

// Params holds the derived concurrency parameters for one process run.
type Params struct {
	NumCPU     int
	Cores      int
	Workers    int // fixed worker-pool size for §4.4's partition inverter
	ChanDepth  int // buffered-channel depth for inter-stage pipes
	TotalRAM   uint64
}

var current Params

// Configure derives Params from the host and applies GOMAXPROCS/GC
// settings process-wide. It should be called once, early in main(), before
// any pipeline stage starts. A gcPercent of 0 leaves the runtime default in
// place.
func Configure(maxProcs, gcPercent int) Params {
	nCPU := runtime.NumCPU()
	if nCPU < 1 {
		nCPU = 1
	}

	cores := nCPU
	if cpuid.CPU.ThreadsPerCore > 1 {
		if c := nCPU / cpuid.CPU.ThreadsPerCore; c > 0 {
			cores = c
		}
	}

	if maxProcs < 1 {
		maxProcs = nCPU
	}
	if maxProcs > nCPU {
		maxProcs = nCPU
	}
	runtime.GOMAXPROCS(maxProcs)

	if gcPercent > 0 {
		debug.SetGCPercent(gcPercent)
	}

	current = Params{
		NumCPU:    nCPU,
		Cores:     cores,
		Workers:   maxProcs,
		ChanDepth: maxProcs * 4,
		TotalRAM:  memory.TotalMemory(),
	}
	return current
}

// Current returns the most recent Params set by Configure, or a
// best-effort default derived from runtime.NumCPU if Configure was never
// called (e.g. in unit tests).
func Current() Params {
	if current.Workers == 0 {
		return Configure(0, 0)
	}
	return current
}

// Workers returns the fixed worker-pool size to use for data-parallel
// stages (§4.4's per-partition inverter farm, §4.6's HTTP resolution
// farm).
func Workers() int {
	return Current().Workers
}

// ChanDepth returns the default buffered-channel depth for inter-stage
// pipes.
func ChanDepth() int {
	return Current().ChanDepth
}

// DefaultPartitionBatchRows picks a partition buffer flush threshold
// scaled to available memory, erring toward the conservative end of
// §6.8's "millions of rows" guidance on a modest host and only using a
// higher threshold when ample RAM is actually available.
func DefaultPartitionBatchRows() int {
	ram := Current().TotalRAM
	const gib = 1 << 30
	switch {
	case ram >= 32*gib:
		return 4_000_000
	case ram >= 8*gib:
		return 1_000_000
	default:
		return 250_000
	}
}
