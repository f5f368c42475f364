// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command journalbench drives Append calls against a journal.Journal and
// reports a latency histogram. It runs as a standalone binary so a histogram
// can be emitted via github.com/benmathews/hdrhistogram-writer instead of
// testing.B's summary stats.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	hdr "github.com/HdrHistogram/hdrhistogram-go"
	hdrwriter "github.com/benmathews/hdrhistogram-writer"

	journal "github.com/kiyraft/journal"
)

func main() {
	dir := flag.String("dir", "", "journal directory (default: a temp dir that is removed on exit)")
	entrySize := flag.Int("entry-size", 1024, "size in bytes of each appended entry")
	segmentSize := flag.Uint("segment-size", journal.DefaultSegmentSize, "segment file capacity in bytes")
	count := flag.Int("count", 100000, "number of entries to append")
	flush := flag.Bool("flush", false, "fsync every append")
	csvOut := flag.String("csv", "", "write a percentile CSV to this path (default: stdout summary only)")
	flag.Parse()

	dirToUse := *dir
	if dirToUse == "" {
		tmp, err := os.MkdirTemp("", "journalbench-*")
		if err != nil {
			log.Fatalf("mkdtemp: %s", err)
		}
		defer os.RemoveAll(tmp)
		dirToUse = tmp
	}

	j, err := journal.Open(dirToUse,
		journal.WithSegmentSize(uint32(*segmentSize)),
		journal.WithFlushExplicitly(*flush),
	)
	if err != nil {
		log.Fatalf("open: %s", err)
	}
	defer j.Close()

	payload := make([]byte, *entrySize)
	rand.Read(payload)

	hist := hdr.New(1, int64(10*time.Second), 3)

	for i := 0; i < *count; i++ {
		start := time.Now()
		if _, err := j.Append(journal.NoASQN, payload); err != nil {
			log.Fatalf("append %d: %s", i, err)
		}
		if err := hist.RecordValue(time.Since(start).Microseconds()); err != nil {
			log.Fatalf("record latency: %s", err)
		}
	}

	fmt.Printf("appended %d entries of %d bytes (segmentSize=%d flush=%v)\n", *count, *entrySize, *segmentSize, *flush)
	fmt.Printf("p50=%dus p99=%dus p999=%dus max=%dus\n",
		hist.ValueAtPercentile(50), hist.ValueAtPercentile(99), hist.ValueAtPercentile(99.9), hist.Max())

	if *csvOut != "" {
		cfg := &hdrwriter.Config{
			Percentiles:                    []float64{10, 25, 50, 75, 90, 99, 99.9, 99.99, 100},
			PercentileTicksPerHalfDistance: 5,
		}
		if err := hdrwriter.WriteDistributionFile(hist, cfg, 1.0, *csvOut); err != nil {
			log.Fatalf("write csv: %s", err)
		}
	}
}
