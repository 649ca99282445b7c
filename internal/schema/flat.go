package schema

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// reader wraps a flatbuffers table and resolves fields by slot index.
type reader struct {
	tab flatbuffers.Table
}

func rootReader(buf []byte) reader {
	n := flatbuffers.GetUOffsetT(buf)
	return reader{tab: flatbuffers.Table{Bytes: buf, Pos: n}}
}

func (r reader) field(slot int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(r.tab.Offset(flatbuffers.VOffsetT(4 + 2*slot)))
}

func (r reader) int32At(slot int) int32 {
	if o := r.field(slot); o != 0 {
		return r.tab.GetInt32(o + r.tab.Pos)
	}
	return 0
}

func (r reader) int8At(slot int) int8 {
	if o := r.field(slot); o != 0 {
		return r.tab.GetInt8(o + r.tab.Pos)
	}
	return 0
}

func (r reader) byteAt(slot int) byte {
	if o := r.field(slot); o != 0 {
		return r.tab.GetByte(o + r.tab.Pos)
	}
	return 0
}

func (r reader) stringAt(slot int) string {
	if o := r.field(slot); o != 0 {
		return string(r.tab.ByteVector(o + r.tab.Pos))
	}
	return ""
}

func (r reader) table(slot int) (reader, bool) {
	o := r.field(slot)
	if o == 0 {
		return reader{}, false
	}
	pos := r.tab.Indirect(o + r.tab.Pos)
	return reader{tab: flatbuffers.Table{Bytes: r.tab.Bytes, Pos: pos}}, true
}

// vecStruct reads an inline {x, y int32} struct.
func (r reader) vecStruct(slot int) (int32, int32) {
	o := r.field(slot)
	if o == 0 {
		return 0, 0
	}
	pos := o + r.tab.Pos
	return r.tab.GetInt32(pos), r.tab.GetInt32(pos + 4)
}

// vector resolves the vector at field offset o. The length prefix must fit in the bytes that
// follow it, so a corrupt prefix fails before anything is allocated.
func (r reader) vector(o flatbuffers.UOffsetT, elemSize int) (flatbuffers.UOffsetT, int) {
	n := r.tab.VectorLen(o)
	start := r.tab.Vector(o)
	if n < 0 || int(start) > len(r.tab.Bytes) || n > (len(r.tab.Bytes)-int(start))/elemSize {
		panic(fmt.Sprintf("vector of %d elements at %d overruns %d bytes", n, start, len(r.tab.Bytes)))
	}
	return start, n
}

func (r reader) int32s(slot int) []int32 {
	o := r.field(slot)
	if o == 0 {
		return nil
	}
	start, n := r.vector(o, 4)
	out := make([]int32, n)
	for i := range out {
		out[i] = r.tab.GetInt32(start + flatbuffers.UOffsetT(i*4))
	}
	return out
}

func (r reader) int8s(slot int) []int8 {
	o := r.field(slot)
	if o == 0 {
		return nil
	}
	start, n := r.vector(o, 1)
	out := make([]int8, n)
	for i := range out {
		out[i] = r.tab.GetInt8(start + flatbuffers.UOffsetT(i))
	}
	return out
}

func (r reader) bytesAt(slot int) []byte {
	o := r.field(slot)
	if o == 0 {
		return nil
	}
	return append([]byte{}, r.tab.ByteVector(o+r.tab.Pos)...)
}

func (r reader) bools(slot int) []bool {
	raw := r.int8s(slot)
	if raw == nil {
		return nil
	}
	out := make([]bool, len(raw))
	for i, v := range raw {
		if v != 0 && v != 1 {
			panic(fmt.Sprintf("bool vector slot %d holds %d at %d", slot, v, i))
		}
		out[i] = v == 1
	}
	return out
}

func (r reader) strings(slot int) []string {
	o := r.field(slot)
	if o == 0 {
		return nil
	}
	start, n := r.vector(o, 4)
	out := make([]string, n)
	for i := range out {
		out[i] = string(r.tab.ByteVector(start + flatbuffers.UOffsetT(i*4)))
	}
	return out
}

func (r reader) tables(slot int) []reader {
	o := r.field(slot)
	if o == 0 {
		return nil
	}
	start, n := r.vector(o, 4)
	out := make([]reader, n)
	for i := range out {
		pos := r.tab.Indirect(start + flatbuffers.UOffsetT(i*4))
		out[i] = reader{tab: flatbuffers.Table{Bytes: r.tab.Bytes, Pos: pos}}
	}
	return out
}

// writer adds slice helpers on top of the flatbuffers builder. A nil slice is omitted
// entirely so that presence survives a round trip.
type writer struct {
	*flatbuffers.Builder
}

func newWriter() writer {
	return writer{Builder: flatbuffers.NewBuilder(1024)}
}

func (w writer) int32s(values []int32) flatbuffers.UOffsetT {
	if values == nil {
		return 0
	}
	w.StartVector(4, len(values), 4)
	for i := len(values) - 1; i >= 0; i-- {
		w.PrependInt32(values[i])
	}
	return w.EndVector(len(values))
}

func (w writer) int8s(values []int8) flatbuffers.UOffsetT {
	if values == nil {
		return 0
	}
	w.StartVector(1, len(values), 1)
	for i := len(values) - 1; i >= 0; i-- {
		w.PrependInt8(values[i])
	}
	return w.EndVector(len(values))
}

func (w writer) bools(values []bool) flatbuffers.UOffsetT {
	if values == nil {
		return 0
	}
	w.StartVector(1, len(values), 1)
	for i := len(values) - 1; i >= 0; i-- {
		w.PrependBool(values[i])
	}
	return w.EndVector(len(values))
}

func (w writer) bytes(values []byte) flatbuffers.UOffsetT {
	if values == nil {
		return 0
	}
	return w.CreateByteVector(values)
}

func (w writer) str(value string) flatbuffers.UOffsetT {
	if value == "" {
		return 0
	}
	return w.CreateString(value)
}

func (w writer) strs(values []string) flatbuffers.UOffsetT {
	if values == nil {
		return 0
	}
	offsets := make([]flatbuffers.UOffsetT, len(values))
	for i, v := range values {
		offsets[i] = w.CreateString(v)
	}
	return w.offsets(offsets)
}

func (w writer) offsets(offsets []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	w.StartVector(4, len(offsets), 4)
	for i := len(offsets) - 1; i >= 0; i-- {
		w.PrependUOffsetT(offsets[i])
	}
	return w.EndVector(len(offsets))
}

func (w writer) ref(slot int, off flatbuffers.UOffsetT) {
	if off != 0 {
		w.PrependUOffsetTSlot(slot, off, 0)
	}
}

// vecStruct writes an inline {x, y int32} struct into the table under construction.
func (w writer) vecStruct(slot int, x, y int32) {
	w.Prep(4, 8)
	w.PrependInt32(y)
	w.PrependInt32(x)
	w.PrependStructSlot(slot, w.Offset(), 0)
}
