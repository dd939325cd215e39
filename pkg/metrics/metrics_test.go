// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/bridge"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource bridge.Counters

func (s staticSource) Snapshot() bridge.Counters { return bridge.Counters(s) }

func TestCollector(t *testing.T) {
	src := staticSource{
		StartTime:        time.Now().Add(-time.Minute),
		HostPackets:      12,
		ChecksumErrors:   1,
		FramingResets:    3,
		PacketTimeouts:   2,
		Forwarded:        9,
		RelayedBytes:     60,
		SyncReads:        2,
		SyncReadFailures: 1,
		BusQueries:       5,
		BusTimeouts:      1,
	}

	c := NewCollector(src)

	expected := `
# HELP dxbridge_host_errors_total Host packets rejected or abandoned, by reason.
# TYPE dxbridge_host_errors_total counter
dxbridge_host_errors_total{reason="checksum"} 1
dxbridge_host_errors_total{reason="framing"} 1
dxbridge_host_errors_total{reason="timeout"} 2
dxbridge_host_errors_total{reason="too_many_targets"} 0
dxbridge_host_errors_total{reason="unknown_command"} 0
# HELP dxbridge_sync_reads_total Aggregated position reads, by result.
# TYPE dxbridge_sync_reads_total counter
dxbridge_sync_reads_total{result="failed"} 1
dxbridge_sync_reads_total{result="ok"} 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"dxbridge_host_errors_total", "dxbridge_sync_reads_total"))

	assert.Equal(t, 16, testutil.CollectAndCount(c))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(NewCollector(bridge.NewStatistics()))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "dxbridge_host_packets_total 0")
	assert.Contains(t, string(body), "go_goroutines")
}
