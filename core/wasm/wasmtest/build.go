// Package wasmtest builds minimal, valid Wasm binaries for tests,
// including an import section so host-call dispatch can be exercised.
package wasmtest

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionExport   = 7
	sectionCode     = 10

	exportFunc = 0
)

// Module builds a single-function module: `imports` become host function
// imports (module name fixed to "env"), `body` is the raw opcode stream for
// the one local function (index len(imports)), exported under `export` if
// non-empty.
func Module(imports []string, export string, numLocals int, body []byte) []byte {
	var exports []string
	if export != "" {
		exports = []string{export}
	}
	return ModuleMultiExport(imports, exports, numLocals, body)
}

// ModuleMultiExport builds a single-function module the way Module does, but
// exports the one local function under every name in `exports` -- used by
// executor-level tests that need a contract whose `deploy` and `call`
// entry points are the same trivial no-op body.
func ModuleMultiExport(imports []string, exports []string, numLocals int, body []byte) []byte {
	buf := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// One shared func type: () -> (i32), used by every import and the
	// local function alike -- the interpreter doesn't enforce signatures.
	buf = appendSection(buf, sectionType, []byte{0x01, 0x60, 0x00, 0x01, 0x7F})

	if len(imports) > 0 {
		var id []byte
		id = appendLEB128(id, uint32(len(imports)))
		for _, name := range imports {
			id = append(id, 0x03)
			id = append(id, "env"...)
			id = appendLEB128(id, uint32(len(name)))
			id = append(id, name...)
			id = append(id, 0x00) // kind=func
			id = append(id, 0x00) // type index 0
		}
		buf = appendSection(buf, sectionImport, id)
	}

	buf = appendSection(buf, sectionFunction, []byte{0x01, 0x00})

	if len(exports) > 0 {
		localIdx := uint32(len(imports))
		ed := appendLEB128(nil, uint32(len(exports)))
		for _, name := range exports {
			ed = append(ed, byte(len(name)))
			ed = append(ed, name...)
			ed = append(ed, exportFunc)
			ed = appendLEB128(ed, localIdx)
		}
		buf = appendSection(buf, sectionExport, ed)
	}

	var fb []byte
	if numLocals > 0 {
		fb = append(fb, 0x01)
		fb = appendLEB128(fb, uint32(numLocals))
		fb = append(fb, 0x7F)
	} else {
		fb = append(fb, 0x00)
	}
	fb = append(fb, body...)
	fb = append(fb, 0x0B) // end
	cd := []byte{0x01}
	cd = appendLEB128(cd, uint32(len(fb)))
	cd = append(cd, fb...)
	buf = appendSection(buf, sectionCode, cd)
	return buf
}

// ModuleDeployCall builds a two-function module: a no-op `deploy` export and
// a `call` export running the given body -- for contracts whose constructor
// must not re-run the call path's side effects (storage writes, terminate).
func ModuleDeployCall(imports []string, numLocals int, callBody []byte) []byte {
	buf := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	buf = appendSection(buf, sectionType, []byte{0x01, 0x60, 0x00, 0x01, 0x7F})

	if len(imports) > 0 {
		var id []byte
		id = appendLEB128(id, uint32(len(imports)))
		for _, name := range imports {
			id = append(id, 0x03)
			id = append(id, "env"...)
			id = appendLEB128(id, uint32(len(name)))
			id = append(id, name...)
			id = append(id, 0x00) // kind=func
			id = append(id, 0x00) // type index 0
		}
		buf = appendSection(buf, sectionImport, id)
	}

	buf = appendSection(buf, sectionFunction, []byte{0x02, 0x00, 0x00})

	deployIdx := uint32(len(imports))
	ed := appendLEB128(nil, 2)
	ed = append(ed, byte(len("deploy")))
	ed = append(ed, "deploy"...)
	ed = append(ed, exportFunc)
	ed = appendLEB128(ed, deployIdx)
	ed = append(ed, byte(len("call")))
	ed = append(ed, "call"...)
	ed = append(ed, exportFunc)
	ed = appendLEB128(ed, deployIdx+1)
	buf = appendSection(buf, sectionExport, ed)

	deployBody := []byte{0x00, 0x0B}
	var fb []byte
	if numLocals > 0 {
		fb = append(fb, 0x01)
		fb = appendLEB128(fb, uint32(numLocals))
		fb = append(fb, 0x7F)
	} else {
		fb = append(fb, 0x00)
	}
	fb = append(fb, callBody...)
	fb = append(fb, 0x0B)

	cd := []byte{0x02}
	cd = appendLEB128(cd, uint32(len(deployBody)))
	cd = append(cd, deployBody...)
	cd = appendLEB128(cd, uint32(len(fb)))
	cd = append(cd, fb...)
	buf = appendSection(buf, sectionCode, cd)
	return buf
}

func appendSection(buf []byte, id byte, data []byte) []byte {
	buf = append(buf, id)
	buf = appendLEB128(buf, uint32(len(data)))
	return append(buf, data...)
}

// AppendLEB128 appends the unsigned LEB128 encoding of v to buf.
func AppendLEB128(buf []byte, v uint32) []byte { return appendLEB128(buf, v) }

func appendLEB128(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// AppendSLEB128 appends the signed LEB128 encoding of v to buf.
func AppendSLEB128(buf []byte, v int32) []byte {
	more := true
	for more {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		buf = append(buf, b)
	}
	return buf
}
