// Package mmu implements the per-ASID page tables, LRU TLB, and memory-type
// attributes that sit between CPU virtual addresses and the physical bus.
package mmu

// MemType classifies a page for cacheability and ordering purposes.
type MemType int

const (
	Normal MemType = iota
	Device
	WC
)

// Perm carries the access permissions and memory type of a page.
type Perm struct {
	Writable   bool
	Executable bool
	User       bool
	MemType    MemType
	Cached     *bool // nil means "derive from MemType"; non-nil is an explicit override.
}

// resolvedCached applies the default cacheability rule: device/wc pages
// are uncached unless the mapper explicitly overrides it.
func (p Perm) resolvedCached() bool {
	if p.Cached != nil {
		return *p.Cached
	}
	return p.MemType == Normal
}

// PTE is the page table entry state visible to translate/check_access.
type PTE struct {
	Frame      uint64
	Present    bool
	Writable   bool
	Executable bool
	User       bool
	Cached     bool
	MemType    MemType
	Dirty      bool
	Accessed   bool
}

// AccessKind names the kind of access check_access is asked to validate.
type AccessKind int

const (
	Read AccessKind = iota
	Write
	Execute
)
