// Package codecache implements the Code Cache: a content-addressed store
// of pristine and instrumented Wasm modules with per-module refcount and
// owner deposit. A plain map rather than an LRU, since the cache must
// never silently evict an entry still referenced by a live contract.
package codecache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
	"github.com/eth2030/eth2030-contracts/crypto"
	"github.com/eth2030/eth2030-contracts/log"
)

// WASM binary format constants.
const (
	wasmMagic   uint32 = 0x6D736100
	wasmMinSize        = 8
)

// WASM section IDs.
const (
	SectionCustom   byte = 0
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionTable    byte = 4
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionStart    byte = 8
	SectionElement  byte = 9
	SectionCode     byte = 10
	SectionData     byte = 11
)

// Export kind constants.
const (
	ExportFunc   byte = 0
	ExportTable  byte = 1
	ExportMemory byte = 2
	ExportGlobal byte = 3
)

var errBadLEB128 = errors.New("codecache: invalid LEB128 encoding")

// Section is one parsed Wasm binary section.
type Section struct {
	ID   byte
	Data []byte
}

// Module is a validated, parsed Wasm module plus the bookkeeping the
// interpreter and host dispatch need: export name -> function index, and
// the list of imported host functions a `call` may target.
type Module struct {
	Pristine   []byte
	Hash       types.Hash
	Sections   []Section
	Exports    map[string]uint32
	Imports    []string // imported function names, indexed by import order
	CodeBodies [][]byte
}

// Instrumented tags which Schedule version a stored module was compiled
// against, so a stale form is re-instrumented on load.
type Instrumented struct {
	Module  *Module
	Version uint32
}

// entry is the three co-existing records for one code hash: pristine
// bytes, instrumented form, and owner info.
type entry struct {
	pristine     []byte
	instrumented *Instrumented
	owner        types.AccountID
	deposit      *types.Balance
	refcount     uint64
	determinism  types.Determinism
}

// Cache is the Code Cache component.
type Cache struct {
	mu      sync.Mutex
	entries map[types.Hash]*entry
	log     *log.Logger
}

// New constructs an empty Cache.
func New(logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{entries: make(map[types.Hash]*entry), log: logger.Module("codecache")}
}

// ValidateWasmBytecode checks the magic bytes, version, size limit, and
// section-header integrity.
func ValidateWasmBytecode(code []byte, maxLen uint32) error {
	if len(code) < wasmMinSize {
		return fmt.Errorf("%w: bytecode too short for wasm header", types.ErrDecodingFailed)
	}
	if uint32(len(code)) > maxLen {
		return types.ErrCodeTooLarge
	}
	if binary.LittleEndian.Uint32(code[0:4]) != wasmMagic {
		return fmt.Errorf("%w: invalid wasm magic bytes", types.ErrCodeRejected)
	}
	if binary.LittleEndian.Uint32(code[4:8]) != 1 {
		return fmt.Errorf("%w: unsupported wasm version", types.ErrCodeRejected)
	}
	offset := 8
	seen := make(map[byte]bool)
	for offset < len(code) {
		id := code[offset]
		offset++
		size, n, err := decodeLEB128(code[offset:])
		if err != nil {
			return fmt.Errorf("%w: bad section header", types.ErrCodeRejected)
		}
		offset += n
		if offset+int(size) > len(code) {
			return fmt.Errorf("%w: section extends beyond bytecode", types.ErrCodeRejected)
		}
		if id != SectionCustom {
			if seen[id] {
				return fmt.Errorf("%w: duplicate non-custom section", types.ErrCodeRejected)
			}
			seen[id] = true
		}
		offset += int(size)
	}
	return nil
}

// Parse validates and fully parses pristine Wasm bytes into a Module without
// touching the cache or reserving any deposit -- used by the interpreter's
// tests and by bare_upload_code's dry-run path.
func Parse(code []byte, maxLen uint32) (*Module, error) {
	return parseModule(code, maxLen)
}

// parseModule validates and fully parses a pristine module: section walk,
// export-name extraction, import-name extraction, and code bodies.
func parseModule(code []byte, maxLen uint32) (*Module, error) {
	if err := ValidateWasmBytecode(code, maxLen); err != nil {
		return nil, err
	}
	sections, err := parseSections(code[8:])
	if err != nil {
		return nil, err
	}
	m := &Module{
		Pristine: append([]byte(nil), code...),
		Hash:     crypto.Keccak256Hash(code),
		Sections: sections,
		Exports:  make(map[string]uint32),
	}
	for _, s := range sections {
		switch s.ID {
		case SectionExport:
			for name, idx := range parseExports(s.Data) {
				m.Exports[name] = idx
			}
		case SectionImport:
			m.Imports = parseImports(s.Data)
		case SectionCode:
			bodies, err := parseCodeBodies(s.Data)
			if err != nil {
				return nil, err
			}
			m.CodeBodies = bodies
		}
	}
	return m, nil
}

func parseSections(data []byte) ([]Section, error) {
	var sections []Section
	offset := 0
	for offset < len(data) {
		id := data[offset]
		offset++
		size, n, err := decodeLEB128(data[offset:])
		if err != nil {
			return nil, fmt.Errorf("%w: bad section header", types.ErrCodeRejected)
		}
		offset += n
		if offset+int(size) > len(data) {
			return nil, fmt.Errorf("%w: section extends beyond bytecode", types.ErrCodeRejected)
		}
		sd := make([]byte, size)
		copy(sd, data[offset:offset+int(size)])
		sections = append(sections, Section{ID: id, Data: sd})
		offset += int(size)
	}
	return sections, nil
}

// parseExports extracts func export name -> function index. Format: count
// (LEB128), then per entry: name_len, name, kind, index.
func parseExports(data []byte) map[string]uint32 {
	out := make(map[string]uint32)
	if len(data) == 0 {
		return out
	}
	count, n, err := decodeLEB128(data)
	if err != nil {
		return out
	}
	offset := n
	for i := uint32(0); i < count && offset < len(data); i++ {
		nameLen, n2, err2 := decodeLEB128(data[offset:])
		if err2 != nil {
			break
		}
		offset += n2
		if offset+int(nameLen) > len(data) {
			break
		}
		name := string(data[offset : offset+int(nameLen)])
		offset += int(nameLen)
		if offset >= len(data) {
			break
		}
		kind := data[offset]
		offset++
		idx, n3, err3 := decodeLEB128(data[offset:])
		if err3 != nil {
			break
		}
		offset += n3
		if kind == ExportFunc {
			out[name] = idx
		}
	}
	return out
}

// parseImports extracts imported function names. Format: count, then per
// entry: module_len, module, field_len, field, kind, (kind-specific payload).
// Only function imports (kind==0) are recorded; the payload for those is a
// single LEB128 type index.
func parseImports(data []byte) []string {
	var names []string
	if len(data) == 0 {
		return names
	}
	count, n, err := decodeLEB128(data)
	if err != nil {
		return nil
	}
	offset := n
	for i := uint32(0); i < count && offset < len(data); i++ {
		var ok bool
		offset, ok = skipNameOK(data, offset)
		if !ok {
			break
		}
		var field string
		field, offset, ok = readName(data, offset)
		if !ok {
			break
		}
		if offset >= len(data) {
			break
		}
		kind := data[offset]
		offset++
		switch kind {
		case 0: // function import: one LEB128 type index
			_, n2, e := decodeLEB128(data[offset:])
			if e != nil {
				return names
			}
			offset += n2
			names = append(names, field)
		case 1: // table import: elem type (1 byte) + limits
			offset++
			offset = skipLimits(data, offset)
			names = append(names, "")
		case 2: // memory import: limits
			offset = skipLimits(data, offset)
			names = append(names, "")
		case 3: // global import: type (1 byte) + mutability (1 byte)
			offset += 2
			names = append(names, "")
		default:
			return names
		}
	}
	return names
}

func skipLimits(data []byte, offset int) int {
	if offset >= len(data) {
		return offset
	}
	flag := data[offset]
	offset++
	_, n, err := decodeLEB128(data[offset:])
	if err != nil {
		return len(data)
	}
	offset += n
	if flag == 1 {
		_, n2, err2 := decodeLEB128(data[offset:])
		if err2 != nil {
			return len(data)
		}
		offset += n2
	}
	return offset
}

func readName(data []byte, offset int) (string, int, bool) {
	l, n, err := decodeLEB128(data[offset:])
	if err != nil {
		return "", offset, false
	}
	offset += n
	if offset+int(l) > len(data) {
		return "", offset, false
	}
	name := string(data[offset : offset+int(l)])
	return name, offset + int(l), true
}

func skipNameOK(data []byte, offset int) (int, bool) {
	_, offset, ok := readName(data, offset)
	return offset, ok
}

func parseCodeBodies(data []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	cnt, n, err := decodeLEB128(data)
	if err != nil {
		return nil, fmt.Errorf("%w: bad code section", types.ErrCodeRejected)
	}
	off := n
	var bodies [][]byte
	for i := uint32(0); i < cnt; i++ {
		if off >= len(data) {
			return nil, fmt.Errorf("%w: truncated code section", types.ErrCodeRejected)
		}
		sz, n2, e := decodeLEB128(data[off:])
		if e != nil {
			return nil, fmt.Errorf("%w: bad function body size", types.ErrCodeRejected)
		}
		off += n2
		if off+int(sz) > len(data) {
			return nil, fmt.Errorf("%w: function body overruns section", types.ErrCodeRejected)
		}
		b := make([]byte, sz)
		copy(b, data[off:off+int(sz)])
		bodies = append(bodies, b)
		off += int(sz)
	}
	return bodies, nil
}

// validateInstructions scans every function body for instructions outside
// the deterministic subset. Float, SIMD (0xFD prefix) and atomic (0xFE
// prefix) instructions make on-chain execution non-reproducible, so a
// Deterministic upload carrying any of them is rejected outright; an
// AllowIndeterminism upload skips the scan, since such code is only ever
// reachable from dry-run contexts where a trap on an unimplemented opcode
// is acceptable.
func validateInstructions(m *Module, determinism types.Determinism) error {
	if determinism == types.AllowIndeterminism {
		return nil
	}
	for _, body := range m.CodeBodies {
		if err := scanCodeBody(body); err != nil {
			return err
		}
	}
	return nil
}

// scanCodeBody walks one function body the way the interpreter does (locals
// declaration first, then opcodes with LEB128 immediates) and rejects the
// first instruction outside the deterministic subset.
func scanCodeBody(body []byte) error {
	pc, err := skipLocalsDecl(body)
	if err != nil {
		return err
	}
	for pc < len(body) {
		op := body[pc]
		pc++
		switch op {
		case 0x00, 0x01, 0x0B, 0x0F, 0x1A, 0x1B, // unreachable, nop, end, return, drop, select
			0x45, 0x46, 0x49, 0x4B, 0x4D, 0x4F, // i32 comparisons
			0x6A, 0x6B, 0x6C, 0x6D, 0x6F, // i32 arithmetic
			0x71, 0x72, 0x73, 0x74, 0x76: // i32 bit ops
		case 0x02, 0x03: // block, loop: one blocktype byte
			pc++
		case 0x0C, 0x0D, 0x10, 0x20, 0x21, 0x41: // br, br_if, call, local.get/set, i32.const
			n, ok := skipLEB(body, pc)
			if !ok {
				return fmt.Errorf("%w: truncated instruction immediate", types.ErrCodeRejected)
			}
			pc = n
		case 0x28, 0x36: // i32.load, i32.store: align + offset
			for i := 0; i < 2; i++ {
				n, ok := skipLEB(body, pc)
				if !ok {
					return fmt.Errorf("%w: truncated memory immediate", types.ErrCodeRejected)
				}
				pc = n
			}
		case 0xFD:
			return fmt.Errorf("%w: SIMD instruction in deterministic code", types.ErrCodeRejected)
		case 0xFE:
			return fmt.Errorf("%w: atomic instruction in deterministic code", types.ErrCodeRejected)
		default:
			if isFloatOpcode(op) {
				return fmt.Errorf("%w: float instruction 0x%02x in deterministic code", types.ErrCodeRejected, op)
			}
			return fmt.Errorf("%w: unsupported instruction 0x%02x", types.ErrCodeRejected, op)
		}
	}
	return nil
}

// isFloatOpcode reports whether op is an f32/f64 instruction.
func isFloatOpcode(op byte) bool {
	switch {
	case op >= 0x2A && op <= 0x2B: // f32/f64.load
		return true
	case op >= 0x38 && op <= 0x39: // f32/f64.store
		return true
	case op >= 0x43 && op <= 0x44: // f32/f64.const
		return true
	case op >= 0x5B && op <= 0x66: // float comparisons
		return true
	case op >= 0x8B && op <= 0xA6: // float arithmetic
		return true
	case op >= 0xA8 && op <= 0xBF && op != 0xAC && op != 0xAD: // float conversions/reinterpretations
		return true
	}
	return false
}

// skipLocalsDecl returns the offset of the first opcode in a function body,
// past the locals declaration.
func skipLocalsDecl(body []byte) (int, error) {
	if len(body) == 0 {
		return 0, nil
	}
	decls, n, err := decodeLEB128(body)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed locals declaration", types.ErrCodeRejected)
	}
	pc := n
	for i := uint32(0); i < decls && pc < len(body); i++ {
		_, n2, err2 := decodeLEB128(body[pc:])
		if err2 != nil {
			return 0, fmt.Errorf("%w: malformed locals declaration", types.ErrCodeRejected)
		}
		pc += n2
		pc++ // value type byte
	}
	return pc, nil
}

// skipLEB advances past one LEB128 immediate starting at pc, reporting
// whether the immediate terminated inside the body.
func skipLEB(body []byte, pc int) (int, bool) {
	for pc < len(body) {
		b := body[pc]
		pc++
		if b&0x80 == 0 {
			return pc, true
		}
	}
	return pc, false
}

func decodeLEB128(data []byte) (uint32, int, error) {
	var result uint32
	var shift uint
	for i := 0; i < len(data) && i < 5; i++ {
		b := data[i]
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, errBadLEB128
}

// depositFor computes the deposit reserved for an instrumented module of
// the given length.
func depositFor(instrumentedLen int, depositPerByte uint64) *types.Balance {
	return new(types.Balance).SetUint64(uint64(instrumentedLen) * depositPerByte)
}

// instrument is a stand-in for a full gas-metering/stack-height rewriter:
// since the interpreter (package wasm) charges gas at dispatch
// time against the live meter rather than via injected instructions, the
// "instrumented" form here is the same parsed Module tagged with the
// Schedule version it was validated against.
func instrument(m *Module, version uint32) *Instrumented {
	return &Instrumented{Module: m, Version: version}
}

// Upload validates, parses, and admits pristine Wasm bytes, reserving a
// deposit from owner unless the bytes are already cached; a second upload
// of the same bytes never double-reserves. Deterministic uploads are
// additionally held to the interpreter's instruction subset: a module
// carrying float, SIMD or atomic instructions is rejected here, at
// admission time, rather than left to trap on first execution.
func (c *Cache) Upload(owner types.AccountID, code []byte, determinism types.Determinism, maxCodeLen uint32, depositPerByte uint64, scheduleVersion uint32, depositMeter interface {
	Charge(*types.Balance) error
}) (types.Hash, error) {
	m, err := parseModule(code, maxCodeLen)
	if err != nil {
		return types.Hash{}, err
	}
	if err := validateInstructions(m, determinism); err != nil {
		return types.Hash{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[m.Hash]; ok {
		if e.instrumented.Version < scheduleVersion {
			e.instrumented = instrument(m, scheduleVersion)
		}
		return m.Hash, nil
	}
	inst := instrument(m, scheduleVersion)
	deposit := depositFor(len(code), depositPerByte)
	if depositMeter != nil {
		if err := depositMeter.Charge(deposit); err != nil {
			return types.Hash{}, err
		}
	}
	c.entries[m.Hash] = &entry{
		pristine:     m.Pristine,
		instrumented: inst,
		owner:        owner,
		deposit:      deposit,
		determinism:  determinism,
	}
	c.log.WithAccount(owner).Info("code stored", "code_hash", m.Hash, "bytes", len(code))
	return m.Hash, nil
}

// Load returns the instrumented module for codeHash, charging a per-byte
// decode cost and reinstrumenting if the stored version is stale.
func (c *Cache) Load(codeHash types.Hash, currentVersion uint32, perByteDecode gas.Weight, gasMeter interface {
	Charge(gas.Weight) error
}) (*Module, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[codeHash]
	if !ok {
		return nil, types.ErrCodeNotFound
	}
	cost := gas.Weight{RefTime: perByteDecode.RefTime * uint64(len(e.pristine)), ProofSize: perByteDecode.ProofSize * uint64(len(e.pristine))}
	if gasMeter != nil {
		if err := gasMeter.Charge(cost); err != nil {
			return nil, err
		}
	}
	if e.instrumented.Version < currentVersion {
		m, err := parseModule(e.pristine, uint32(len(e.pristine))+1)
		if err != nil {
			return nil, err
		}
		e.instrumented = instrument(m, currentVersion)
	}
	return e.instrumented.Module, nil
}

// AddUser increments the refcount for codeHash.
func (c *Cache) AddUser(codeHash types.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[codeHash]
	if !ok {
		return types.ErrCodeNotFound
	}
	e.refcount++
	return nil
}

// RemoveUser decrements the refcount for codeHash. A drop to zero leaves the
// entry queryable but removable.
func (c *Cache) RemoveUser(codeHash types.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[codeHash]
	if !ok {
		return types.ErrCodeNotFound
	}
	if e.refcount > 0 {
		e.refcount--
	}
	return nil
}

// Refcount reports the current refcount for codeHash.
func (c *Cache) Refcount(codeHash types.Hash) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[codeHash]
	if !ok {
		return 0, false
	}
	return e.refcount, true
}

// Remove deletes codeHash's entry and refunds its deposit, failing if the
// caller is not the owner or the entry is still referenced.
func (c *Cache) Remove(caller types.AccountID, codeHash types.Hash) (*types.Balance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[codeHash]
	if !ok {
		return nil, types.ErrCodeNotFound
	}
	if e.refcount > 0 {
		return nil, types.ErrCodeInUse
	}
	if e.owner != caller {
		return nil, fmt.Errorf("%w: caller is not the code owner", types.ErrCodeInUse)
	}
	delete(c.entries, codeHash)
	c.log.WithAccount(caller).Info("code removed", "code_hash", codeHash)
	return e.deposit, nil
}

// Evict drops codeHash unconditionally, bypassing the owner and refcount
// checks Remove enforces. Used by the executor's journal to undo an Upload
// whose enclosing root transaction failed before the deposit was ever
// applied; not part of the dispatchable surface.
func (c *Cache) Evict(codeHash types.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, codeHash)
}

// Determinism reports the determinism tag of codeHash.
func (c *Cache) Determinism(codeHash types.Hash) (types.Determinism, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[codeHash]
	if !ok {
		return 0, false
	}
	return e.determinism, true
}

// Owner reports the owner of codeHash.
func (c *Cache) Owner(codeHash types.Hash) (types.AccountID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[codeHash]
	if !ok {
		return types.AccountID{}, false
	}
	return e.owner, true
}
