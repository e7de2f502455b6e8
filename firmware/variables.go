package firmware

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/edujime23/warden/telemetry"
	"github.com/edujime23/warden/werr"
	"github.com/rs/xid"
)

// Attr is the access class of a stored variable.
type Attr int

const (
	// ReadOnly variables may be set once; subsequent Set calls fail.
	ReadOnly Attr = iota
	// Runtime variables may be overwritten any number of times.
	Runtime
)

type varKey struct {
	guid, name string
}

// VariableStore is an in-memory, GUID+name keyed store of named byte blobs,
// modeled on a UEFI-style variable service.
type VariableStore struct {
	mu   sync.RWMutex
	vars map[varKey]storedVar
	rec  *telemetry.Recorder
}

type storedVar struct {
	attr  Attr
	bytes []byte
}

// NewVariableStore constructs an empty store. rec may be nil; if set, Set
// and Delete are mirrored to it as telemetry records.
func NewVariableStore(rec *telemetry.Recorder) *VariableStore {
	return &VariableStore{vars: make(map[varKey]storedVar), rec: rec}
}

// Set stores bytes under (guid, name) with the given attribute. Setting a
// ReadOnly variable that already exists fails with werr.ReadOnly.
func (s *VariableStore) Set(guid, name string, attr Attr, bytes []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := varKey{guid, name}
	if existing, ok := s.vars[key]; ok && existing.attr == ReadOnly {
		return werr.New(werr.ReadOnly, "firmware.variable_set", 0)
	}

	cp := make([]byte, len(bytes))
	copy(cp, bytes)
	s.vars[key] = storedVar{attr: attr, bytes: cp}

	if s.rec != nil {
		s.rec.RecordVariableSet(guid, name, int(attr), len(bytes))
	}
	return nil
}

// SetGenerated stores bytes under (name, attr), generating a fresh xid-based
// guid when the caller omits one, and returns the guid the variable was
// stored under. Passing more than one guid is a programmer error; only the
// first is used.
func (s *VariableStore) SetGenerated(name string, attr Attr, bytes []byte, guid ...string) (string, error) {
	id := ""
	if len(guid) > 0 {
		id = guid[0]
	}
	if id == "" {
		id = xid.New().String()
	}
	if err := s.Set(id, name, attr, bytes); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the bytes stored under (guid, name), or false if absent.
func (s *VariableStore) Get(guid, name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[varKey{guid, name}]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v.bytes))
	copy(out, v.bytes)
	return out, true
}

// Delete removes (guid, name), if present.
func (s *VariableStore) Delete(guid, name string) {
	s.mu.Lock()
	delete(s.vars, varKey{guid, name})
	s.mu.Unlock()

	if s.rec != nil {
		s.rec.RecordVariableDelete(guid, name)
	}
}

// VarInfo describes one stored variable for List.
type VarInfo struct {
	GUID, Name string
	Attr       Attr
}

// List returns every stored variable's key and attribute, in no particular
// order.
func (s *VariableStore) List() []VarInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]VarInfo, 0, len(s.vars))
	for k, v := range s.vars {
		out = append(out, VarInfo{GUID: k.guid, Name: k.name, Attr: v.attr})
	}
	return out
}

// Save writes every variable to path as tab-separated
// hex(attr)\tguid\tname\thex(bytes) lines.
func (s *VariableStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("firmware.variable_save: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for k, v := range s.vars {
		line := fmt.Sprintf("%02x\t%s\t%s\t%s\n", v.attr, k.guid, k.name, hex.EncodeToString(v.bytes))
		if _, err := w.WriteString(line); err != nil {
			return fmt.Errorf("firmware.variable_save: %w", err)
		}
	}
	return w.Flush()
}

// Load replaces the store's contents with the lines read from path.
func (s *VariableStore) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("firmware.variable_load: %w", err)
	}
	defer f.Close()

	next := make(map[varKey]storedVar)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return fmt.Errorf("firmware.variable_load: malformed line %q", line)
		}
		var attr int
		if _, err := fmt.Sscanf(fields[0], "%02x", &attr); err != nil {
			return fmt.Errorf("firmware.variable_load: bad attr %q: %w", fields[0], err)
		}
		data, err := hex.DecodeString(fields[3])
		if err != nil {
			return fmt.Errorf("firmware.variable_load: bad bytes: %w", err)
		}
		next[varKey{fields[1], fields[2]}] = storedVar{attr: Attr(attr), bytes: data}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("firmware.variable_load: %w", err)
	}

	s.mu.Lock()
	s.vars = next
	s.mu.Unlock()
	return nil
}
