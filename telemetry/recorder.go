package telemetry

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	// Needed to register the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
)

// Recorder appends Records to an in-memory ring buffer and, if opened with
// a sqlite path, mirrors them to a table keyed by xid. Recording failures
// are logged and swallowed; a faulty recorder must never interrupt the
// caller's own operation.
type Recorder struct {
	mu sync.Mutex

	ring []Record
	cap  int
	seq  uint64

	db   *sql.DB
	stmt *sql.Stmt
}

// New constructs a Recorder with a ring buffer of the given capacity.
func New(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Recorder{cap: capacity}
}

// OpenSQLite opens (creating if absent) a sqlite mirror at path. Any error
// is returned so wiring code can decide whether to proceed without a
// mirror; it does not prevent the in-memory ring from working.
func (r *Recorder) OpenSQLite(path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("telemetry.open_sqlite: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id        TEXT PRIMARY KEY,
			seq       INTEGER NOT NULL,
			ts        DATETIME NOT NULL,
			kind      TEXT NOT NULL,
			detail    TEXT
		)
	`); err != nil {
		db.Close()
		return fmt.Errorf("telemetry.create_table: %w", err)
	}
	stmt, err := db.Prepare(`INSERT INTO events (id, seq, ts, kind, detail) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return fmt.Errorf("telemetry.prepare: %w", err)
	}

	r.mu.Lock()
	r.db, r.stmt = db, stmt
	r.mu.Unlock()
	return nil
}

// Close releases the sqlite mirror, if one is open.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stmt != nil {
		r.stmt.Close()
	}
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Recorder) record(kind Kind, detail string) {
	r.mu.Lock()
	r.seq++
	rec := Record{Seq: r.seq, Timestamp: time.Now(), Kind: kind, Detail: detail}
	r.ring = append(r.ring, rec)
	if len(r.ring) > r.cap {
		r.ring = r.ring[len(r.ring)-r.cap:]
	}
	stmt := r.stmt
	r.mu.Unlock()

	if stmt == nil {
		return
	}
	if _, err := stmt.Exec(xid.New().String(), rec.Seq, rec.Timestamp, rec.Kind.String(), rec.Detail); err != nil {
		log.Printf("telemetry: sqlite insert failed: %v", err)
	}
}

// RecordFault satisfies bus.FaultRecorder and the fault half of
// cache.EvictionRecorder.
func (r *Recorder) RecordFault(op string, addr uint64, err error) {
	r.record(KindFault, fmt.Sprintf("%s at 0x%x: %v", op, addr, err))
}

// RecordEviction satisfies cache.EvictionRecorder.
func (r *Recorder) RecordEviction(level string, addr uint64, dirty bool) {
	r.record(KindEviction, fmt.Sprintf("%s block 0x%x dirty=%v", level, addr, dirty))
}

// RecordClaim logs a PLIC claim of id by context ctx.
func (r *Recorder) RecordClaim(ctx, id int) {
	r.record(KindClaim, fmt.Sprintf("ctx=%d id=%d", ctx, id))
}

// RecordComplete logs a PLIC complete of id by context ctx.
func (r *Recorder) RecordComplete(ctx, id int) {
	r.record(KindComplete, fmt.Sprintf("ctx=%d id=%d", ctx, id))
}

// RecordDMADone logs a DMA completion, successful or not.
func (r *Recorder) RecordDMADone(src, dst, length uint64, ok bool) {
	r.record(KindDMADone, fmt.Sprintf("src=0x%x dst=0x%x len=%d ok=%v", src, dst, length, ok))
}

// RecordVariableSet logs a firmware variable store write.
func (r *Recorder) RecordVariableSet(guid, name string, attr, length int) {
	r.record(KindVariableSet, fmt.Sprintf("guid=%s name=%s attr=%d len=%d", guid, name, attr, length))
}

// RecordVariableDelete logs a firmware variable store deletion.
func (r *Recorder) RecordVariableDelete(guid, name string) {
	r.record(KindVariableDelete, fmt.Sprintf("guid=%s name=%s", guid, name))
}

// Recent returns the last n records (fewer if the ring holds less),
// oldest first.
func (r *Recorder) Recent(n int) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.ring) {
		n = len(r.ring)
	}
	out := make([]Record, n)
	copy(out, r.ring[len(r.ring)-n:])
	return out
}
