// Package wasm is the stack-machine Wasm interpreter contracts run under.
// A `call` to a function index below the module's import count is resolved
// against the import section and dispatched to the Host Interface instead
// of treated as a local function body; everything else is a plain operand
// stack over the supported i32 opcode subset.
package wasm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/eth2030/eth2030-contracts/core/codecache"
	"github.com/eth2030/eth2030-contracts/core/config"
	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
)

// Opcodes supported by the interpreter.
const (
	opUnreachable byte = 0x00
	opNop         byte = 0x01
	opBlock       byte = 0x02
	opLoop        byte = 0x03
	opEnd         byte = 0x0B
	opBr          byte = 0x0C
	opBrIf        byte = 0x0D
	opReturn      byte = 0x0F
	opCall        byte = 0x10
	opDrop        byte = 0x1A
	opSelect      byte = 0x1B
	opLocalGet    byte = 0x20
	opLocalSet    byte = 0x21
	opI32Load     byte = 0x28
	opI32Store    byte = 0x36
	opI32Const    byte = 0x41
	opI32Eqz      byte = 0x45
	opI32Eq       byte = 0x46
	opI32LtU      byte = 0x49
	opI32GtU      byte = 0x4B
	opI32LeU      byte = 0x4D
	opI32GeU      byte = 0x4F
	opI32Add      byte = 0x6A
	opI32Sub      byte = 0x6B
	opI32Mul      byte = 0x6C
	opI32DivU     byte = 0x6D
	opI32RemU     byte = 0x6F
	opI32And      byte = 0x71
	opI32Or       byte = 0x72
	opI32Xor      byte = 0x73
	opI32Shl      byte = 0x74
	opI32ShrU     byte = 0x76
)

const pageSize = 65536

var (
	errStackUnderflow = errors.New("wasm: stack underflow")
	errInvalidOpcode  = errors.New("wasm: invalid opcode")
	errDivisionByZero = errors.New("wasm: division by zero")
	errMemoryOOB      = errors.New("wasm: memory access out of bounds")
	errNoFunction     = errors.New("wasm: function not found")
	errInvalidLocal   = errors.New("wasm: invalid local index")
)

// Host is the interface the interpreter dispatches imported function calls
// against, implemented against whichever frame is currently executing.
type Host interface {
	// CallHost invokes an imported host function by name. args are the i32
	// values popped off the operand stack in argument order; results are
	// pushed back in order. mem is the contract's linear memory, readable
	// and writable in place by the host function.
	CallHost(name string, mem []byte, args []uint32) ([]uint32, error)
	// HostArity reports how many i32 arguments/results a named host
	// function takes, so the interpreter knows how many stack slots to
	// move. ok is false for an unrecognized import name.
	HostArity(name string) (numArgs, numResults int, ok bool)
}

type frame struct {
	pc, blockDepth int
	body           []byte
	locals         []uint32
}

// State holds one execution's interpreter state: operand stack, linear
// memory, call frames, and the gas meter every instruction and host call
// charges against before taking effect.
type State struct {
	stack    []uint32
	memory   []byte
	frames   []*frame
	module   *codecache.Module
	host     Host
	meter    *gas.Meter
	weights  config.InstructionWeights
	returned bool
}

// NewState constructs interpreter state for one call into module, seeded
// with input copied into the start of linear memory.
func NewState(module *codecache.Module, input []byte, host Host, meter *gas.Meter, weights config.InstructionWeights, memPages uint32) *State {
	if memPages == 0 {
		memPages = 1
	}
	memSize := uint64(memPages) * pageSize
	if memSize > 16*1024*1024 {
		memSize = 16 * 1024 * 1024
	}
	s := &State{
		stack:   make([]uint32, 0, 64),
		memory:  make([]byte, memSize),
		module:  module,
		host:    host,
		meter:   meter,
		weights: weights,
	}
	if n := len(input); n > 0 {
		if uint64(n) > memSize {
			n = int(memSize)
		}
		copy(s.memory, input[:n])
	}
	return s
}

// Memory exposes the linear memory for callers that need to read the
// returned output region directly.
func (s *State) Memory() []byte { return s.memory }

func (s *State) push(v uint32) { s.stack = append(s.stack, v) }
func (s *State) pop() (uint32, error) {
	if len(s.stack) == 0 {
		return 0, errStackUnderflow
	}
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v, nil
}

func (s *State) binop(fn func(a, b uint32) uint32) error {
	b, e := s.pop()
	if e != nil {
		return e
	}
	a, e := s.pop()
	if e != nil {
		return e
	}
	s.push(fn(a, b))
	return nil
}

func b32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// Run executes the named export to completion, returning a 32-byte copy of
// memory[0:32] when nothing remains on the operand stack, or the top stack
// value encoded little-endian otherwise.
func (s *State) Run(export string) ([]byte, error) {
	idx, ok := s.module.Exports[export]
	if !ok {
		return nil, fmt.Errorf("%w: export %q not found", errNoFunction, export)
	}
	if err := s.callFunc(int(idx)); err != nil {
		return nil, err
	}
	if len(s.stack) > 0 {
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, s.stack[len(s.stack)-1])
		return out, nil
	}
	if len(s.memory) >= 32 {
		out := make([]byte, 32)
		copy(out, s.memory[:32])
		return out, nil
	}
	return nil, nil
}

// callFunc dispatches to an imported (host) function when idx falls within
// the import section's function-index space, or to a local function body
// otherwise.
func (s *State) callFunc(idx int) error {
	numImports := len(s.module.Imports)
	if idx < numImports {
		return s.callImport(idx)
	}
	localIdx := idx - numImports
	if localIdx < 0 || localIdx >= len(s.module.CodeBodies) {
		return errNoFunction
	}
	body := s.module.CodeBodies[localIdx]
	lc, pc := 0, 0
	if len(body) > 0 {
		nd, n, e := decodeLEB128(body)
		if e != nil {
			return fmt.Errorf("%w: malformed locals declaration", types.ErrDecodingFailed)
		}
		pc = n
		for i := uint32(0); i < nd && pc < len(body); i++ {
			c, n2, e2 := decodeLEB128(body[pc:])
			if e2 != nil {
				break
			}
			pc += n2
			if pc >= len(body) {
				break
			}
			pc++
			lc += int(c)
		}
	}
	s.frames = append(s.frames, &frame{pc: pc, body: body, locals: make([]uint32, lc)})
	if err := s.meter.Charge(s.weights.Call); err != nil {
		return err
	}
	err := s.exec()
	s.frames = s.frames[:len(s.frames)-1]
	return err
}

// callImport pops the imported function's declared argument count off the
// operand stack, invokes the Host, and pushes its results.
func (s *State) callImport(idx int) error {
	name := s.module.Imports[idx]
	numArgs, numResults, ok := s.host.HostArity(name)
	if !ok {
		return types.ErrNoChainExtension
	}
	args := make([]uint32, numArgs)
	for i := numArgs - 1; i >= 0; i-- {
		v, err := s.pop()
		if err != nil {
			return err
		}
		args[i] = v
	}
	results, err := s.host.CallHost(name, s.memory, args)
	if err != nil {
		return err
	}
	for i := 0; i < numResults && i < len(results); i++ {
		s.push(results[i])
	}
	return nil
}

func (s *State) exec() error {
	f := s.frames[len(s.frames)-1]
	for f.pc < len(f.body) && !s.returned {
		op := f.body[f.pc]
		f.pc++
		if err := s.dispatch(op, f); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) dispatch(op byte, f *frame) error {
	w := s.weights
	switch op {
	case opDrop, opSelect:
		if err := s.meter.Charge(w.Base); err != nil {
			return err
		}
	case opI32Eqz, opI32Eq, opI32LtU, opI32GtU, opI32LeU, opI32GeU,
		opI32And, opI32Or, opI32Xor, opI32Shl, opI32ShrU:
		if err := s.meter.Charge(w.Arith); err != nil {
			return err
		}
	}
	switch op {
	case opUnreachable:
		return types.ErrContractTrapped
	case opNop:
		return s.meter.Charge(w.Base)
	case opBlock, opLoop:
		if err := s.meter.Charge(w.Control); err != nil {
			return err
		}
		if f.pc < len(f.body) {
			f.pc++
		}
		f.blockDepth++
	case opEnd:
		if err := s.meter.Charge(w.Control); err != nil {
			return err
		}
		if f.blockDepth > 0 {
			f.blockDepth--
		} else {
			s.returned = true
		}
	case opBr:
		if err := s.meter.Charge(w.Control); err != nil {
			return err
		}
		d, n, e := decodeLEB128(f.body[f.pc:])
		if e != nil {
			return errInvalidOpcode
		}
		f.pc += n
		s.branch(f, int(d))
	case opBrIf:
		if err := s.meter.Charge(w.Control); err != nil {
			return err
		}
		d, n, e := decodeLEB128(f.body[f.pc:])
		if e != nil {
			return errInvalidOpcode
		}
		f.pc += n
		c, e2 := s.pop()
		if e2 != nil {
			return e2
		}
		if c != 0 {
			s.branch(f, int(d))
		}
	case opReturn:
		s.returned = true
	case opCall:
		idx, n, e := decodeLEB128(f.body[f.pc:])
		if e != nil {
			return errInvalidOpcode
		}
		f.pc += n
		return s.callFunc(int(idx))
	case opDrop:
		_, e := s.pop()
		return e
	case opSelect:
		return s.doSelect()
	case opLocalGet:
		if err := s.meter.Charge(w.Local); err != nil {
			return err
		}
		return s.doLocalGet(f)
	case opLocalSet:
		if err := s.meter.Charge(w.Local); err != nil {
			return err
		}
		return s.doLocalSet(f)
	case opI32Load:
		if err := s.meter.Charge(w.Memory); err != nil {
			return err
		}
		return s.doLoad(f)
	case opI32Store:
		if err := s.meter.Charge(w.Memory); err != nil {
			return err
		}
		return s.doStore(f)
	case opI32Const:
		if err := s.meter.Charge(w.Base); err != nil {
			return err
		}
		v, n, e := decodeSLEB128(f.body[f.pc:])
		if e != nil {
			return errInvalidOpcode
		}
		f.pc += n
		s.push(uint32(v))
	case opI32Eqz:
		v, e := s.pop()
		if e != nil {
			return e
		}
		s.push(b32(v == 0))
	case opI32Eq:
		return s.binop(func(a, b uint32) uint32 { return b32(a == b) })
	case opI32LtU:
		return s.binop(func(a, b uint32) uint32 { return b32(a < b) })
	case opI32GtU:
		return s.binop(func(a, b uint32) uint32 { return b32(a > b) })
	case opI32LeU:
		return s.binop(func(a, b uint32) uint32 { return b32(a <= b) })
	case opI32GeU:
		return s.binop(func(a, b uint32) uint32 { return b32(a >= b) })
	case opI32Add:
		if err := s.meter.Charge(w.Arith); err != nil {
			return err
		}
		return s.binop(func(a, b uint32) uint32 { return a + b })
	case opI32Sub:
		if err := s.meter.Charge(w.Arith); err != nil {
			return err
		}
		return s.binop(func(a, b uint32) uint32 { return a - b })
	case opI32Mul:
		if err := s.meter.Charge(w.Arith); err != nil {
			return err
		}
		return s.binop(func(a, b uint32) uint32 { return a * b })
	case opI32DivU, opI32RemU:
		if err := s.meter.Charge(w.Arith); err != nil {
			return err
		}
		return s.doDivRem(op == opI32RemU)
	case opI32And:
		return s.binop(func(a, b uint32) uint32 { return a & b })
	case opI32Or:
		return s.binop(func(a, b uint32) uint32 { return a | b })
	case opI32Xor:
		return s.binop(func(a, b uint32) uint32 { return a ^ b })
	case opI32Shl:
		return s.binop(func(a, b uint32) uint32 { return a << (b & 31) })
	case opI32ShrU:
		return s.binop(func(a, b uint32) uint32 { return a >> (b & 31) })
	default:
		return errInvalidOpcode
	}
	return nil
}

func (s *State) doSelect() error {
	c, e := s.pop()
	if e != nil {
		return e
	}
	v2, e := s.pop()
	if e != nil {
		return e
	}
	v1, e := s.pop()
	if e != nil {
		return e
	}
	if c != 0 {
		s.push(v1)
	} else {
		s.push(v2)
	}
	return nil
}

func (s *State) doLocalGet(f *frame) error {
	idx, n, e := decodeLEB128(f.body[f.pc:])
	if e != nil {
		return errInvalidOpcode
	}
	f.pc += n
	if int(idx) >= len(f.locals) {
		return errInvalidLocal
	}
	s.push(f.locals[idx])
	return nil
}

func (s *State) doLocalSet(f *frame) error {
	idx, n, e := decodeLEB128(f.body[f.pc:])
	if e != nil {
		return errInvalidOpcode
	}
	f.pc += n
	v, e := s.pop()
	if e != nil {
		return e
	}
	if int(idx) >= len(f.locals) {
		return errInvalidLocal
	}
	f.locals[idx] = v
	return nil
}

func (s *State) readMemImm(f *frame) (uint32, error) {
	_, n1, e := decodeLEB128(f.body[f.pc:])
	if e != nil {
		return 0, errInvalidOpcode
	}
	f.pc += n1
	off, n2, e := decodeLEB128(f.body[f.pc:])
	if e != nil {
		return 0, errInvalidOpcode
	}
	f.pc += n2
	return off, nil
}

func (s *State) doLoad(f *frame) error {
	off, e := s.readMemImm(f)
	if e != nil {
		return e
	}
	addr, e := s.pop()
	if e != nil {
		return e
	}
	ea := int(addr) + int(off)
	if ea < 0 || ea+4 > len(s.memory) {
		return errMemoryOOB
	}
	s.push(binary.LittleEndian.Uint32(s.memory[ea : ea+4]))
	return nil
}

func (s *State) doStore(f *frame) error {
	off, e := s.readMemImm(f)
	if e != nil {
		return e
	}
	val, e := s.pop()
	if e != nil {
		return e
	}
	addr, e := s.pop()
	if e != nil {
		return e
	}
	ea := int(addr) + int(off)
	if ea < 0 || ea+4 > len(s.memory) {
		return errMemoryOOB
	}
	binary.LittleEndian.PutUint32(s.memory[ea:ea+4], val)
	return nil
}

func (s *State) doDivRem(rem bool) error {
	b, e := s.pop()
	if e != nil {
		return e
	}
	a, e := s.pop()
	if e != nil {
		return e
	}
	if b == 0 {
		return errDivisionByZero
	}
	if rem {
		s.push(a % b)
	} else {
		s.push(a / b)
	}
	return nil
}

func (s *State) branch(f *frame, depth int) {
	nest := 0
	for f.pc < len(f.body) {
		op := f.body[f.pc]
		f.pc++
		switch op {
		case opBlock, opLoop:
			if f.pc < len(f.body) {
				f.pc++
			}
			nest++
		case opEnd:
			if nest == depth {
				if f.blockDepth > 0 {
					f.blockDepth--
				}
				return
			}
			if nest > 0 {
				nest--
			}
		case opI32Const:
			s.skipLEB(f)
		case opLocalGet, opLocalSet, opBr, opBrIf, opCall:
			s.skipLEB(f)
		case opI32Load, opI32Store:
			s.skipLEB(f)
			s.skipLEB(f)
		}
	}
}

func (s *State) skipLEB(f *frame) {
	for f.pc < len(f.body) {
		b := f.body[f.pc]
		f.pc++
		if b&0x80 == 0 {
			return
		}
	}
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
	return 0, 0, errors.New("wasm: invalid LEB128 encoding")
}

func decodeSLEB128(data []byte) (int32, int, error) {
	var r int32
	var sh uint
	for i := 0; i < len(data) && i < 5; i++ {
		b := data[i]
		r |= int32(b&0x7F) << sh
		sh += 7
		if b&0x80 == 0 {
			if sh < 32 && b&0x40 != 0 {
				r |= -(1 << sh)
			}
			return r, i + 1, nil
		}
	}
	return 0, 0, errors.New("wasm: invalid signed LEB128")
}
