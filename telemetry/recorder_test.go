package telemetry_test

import (
	"path/filepath"
	"testing"

	"github.com/edujime23/warden/telemetry"
	"github.com/stretchr/testify/require"
)

func TestRecentReturnsOldestFirstWithinCapacity(t *testing.T) {
	r := telemetry.New(3)
	r.RecordFault("bus.read_bytes", 0x100, errFake{})
	r.RecordEviction("l2", 0x200, true)
	r.RecordClaim(0, 5)
	r.RecordComplete(0, 5)

	recent := r.Recent(10)
	require.Len(t, recent, 3, "ring buffer caps at capacity")
	require.Equal(t, telemetry.KindEviction, recent[0].Kind)
	require.Equal(t, telemetry.KindComplete, recent[2].Kind)
}

type errFake struct{}

func (errFake) Error() string { return "fake" }

func TestOpenSQLiteMirrorsRecords(t *testing.T) {
	dir := t.TempDir()
	r := telemetry.New(10)
	require.NoError(t, r.OpenSQLite(filepath.Join(dir, "events.sqlite3")))
	defer r.Close()

	r.RecordDMADone(0x100, 0x200, 64, true)
	require.Len(t, r.Recent(10), 1)
}
