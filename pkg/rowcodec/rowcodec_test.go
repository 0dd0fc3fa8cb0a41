package rowcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArena struct{ buf []byte }

func (f *fakeArena) Allocate(n int) ([]byte, error) {
	start := len(f.buf)
	f.buf = append(f.buf, make([]byte, n)...)
	return f.buf[start : start+n : start+n], nil
}

type fakePool struct{ next uint32 }

func (p *fakePool) NewHLL(seed []byte) uint32    { h := p.next; p.next++; return h }
func (p *fakePool) NewBitmap(seed []byte) uint32 { h := p.next; p.next++; return h }

func intSchema() *Schema {
	return NewSchema([]ColumnSpec{
		{Name: "k", Type: TypeInt64},
		{Name: "v", Type: TypeInt64, Nullable: true},
	}, DUP, 1, Lexicographic, 0, -1)
}

func TestEncodeRoundTripsFixedColumns(t *testing.T) {
	schema := intSchema()
	arena := &fakeArena{}
	row := NewRow(schema, make([]byte, schema.RowWidth()))

	err := Encode(schema, InputRow{Values: []InputValue{{Int: 42}, {Int: -7}}}, row, arena, &fakePool{})
	require.NoError(t, err)

	assert.Equal(t, int64(42), row.GetInt64(0))
	assert.Equal(t, int64(-7), row.GetInt64(1))
	assert.False(t, row.IsNull(0))
	assert.False(t, row.IsNull(1))
}

func TestEncodeSetsNullBit(t *testing.T) {
	schema := intSchema()
	row := NewRow(schema, make([]byte, schema.RowWidth()))

	err := Encode(schema, InputRow{Values: []InputValue{{Int: 1}, {Null: true}}}, row, &fakeArena{}, &fakePool{})
	require.NoError(t, err)

	assert.True(t, row.IsNull(1))
}

func TestEncodePanicsOnNullForNonNullableColumn(t *testing.T) {
	schema := NewSchema([]ColumnSpec{
		{Name: "k", Type: TypeInt64, Nullable: false},
	}, DUP, 1, Lexicographic, 0, -1)
	row := NewRow(schema, make([]byte, schema.RowWidth()))

	assert.Panics(t, func() {
		_ = Encode(schema, InputRow{Values: []InputValue{{Null: true}}}, row, &fakeArena{}, &fakePool{})
	})
}

func TestEncodePanicsOnArityMismatch(t *testing.T) {
	schema := intSchema()
	row := NewRow(schema, make([]byte, schema.RowWidth()))
	assert.Panics(t, func() {
		_ = Encode(schema, InputRow{Values: []InputValue{{Int: 1}}}, row, &fakeArena{}, &fakePool{})
	})
}

func TestVarcharRoundTrip(t *testing.T) {
	schema := NewSchema([]ColumnSpec{
		{Name: "k", Type: TypeInt64},
		{Name: "s", Type: TypeVarchar},
	}, DUP, 1, Lexicographic, 0, -1)
	row := NewRow(schema, make([]byte, schema.RowWidth()))
	arena := &fakeArena{}

	err := Encode(schema, InputRow{Values: []InputValue{{Int: 1}, {Bytes: []byte("hello")}}}, row, arena, &fakePool{})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), row.GetBytes(1))
}

func TestFloatRoundTrip(t *testing.T) {
	schema := NewSchema([]ColumnSpec{
		{Name: "f32", Type: TypeFloat32},
		{Name: "f64", Type: TypeFloat64},
	}, DUP, 0, Lexicographic, 0, -1)
	row := NewRow(schema, make([]byte, schema.RowWidth()))

	err := Encode(schema, InputRow{Values: []InputValue{{Float: 1.5}, {Float: 3.14159265}}}, row, &fakeArena{}, &fakePool{})
	require.NoError(t, err)

	assert.InDelta(t, 1.5, row.GetFloat64(0), 1e-6)
	assert.InDelta(t, 3.14159265, row.GetFloat64(1), 1e-8)
}

func TestCopyRowRebasesAggHandle(t *testing.T) {
	schema := NewSchema([]ColumnSpec{
		{Name: "k", Type: TypeInt64},
		{Name: "h", Type: TypeHLL},
	}, DUP, 1, Lexicographic, 0, -1)

	src := NewRow(schema, make([]byte, schema.RowWidth()))
	src.SetInt64(0, 1)
	src.SetAggHandle(1, 3)

	dst := NewRow(schema, make([]byte, schema.RowWidth()))
	err := CopyRow(dst, src, &fakeArena{}, 10)
	require.NoError(t, err)

	assert.Equal(t, uint32(13), dst.AggHandle(1))
	assert.Equal(t, int64(1), dst.GetInt64(0))
}

func TestCopyRowDeepCopiesVarlen(t *testing.T) {
	schema := NewSchema([]ColumnSpec{
		{Name: "s", Type: TypeVarchar},
	}, DUP, 0, Lexicographic, 0, -1)

	srcArena := &fakeArena{}
	src := NewRow(schema, make([]byte, schema.RowWidth()))
	require.NoError(t, src.SetBytes(0, []byte("abc"), srcArena))

	dstArena := &fakeArena{}
	dst := NewRow(schema, make([]byte, schema.RowWidth()))
	require.NoError(t, CopyRow(dst, src, dstArena, 0))

	assert.Equal(t, []byte("abc"), dst.GetBytes(0))

	src.Varlen[0][0] = 'z'
	assert.Equal(t, byte('a'), dst.GetBytes(0)[0], "dst must not alias src's backing bytes")
}

func TestRowWidthAccountsForNullBitmapAndVarlenHasZeroWidth(t *testing.T) {
	schema := NewSchema([]ColumnSpec{
		{Name: "a", Type: TypeInt8},  // 1 byte
		{Name: "b", Type: TypeInt64}, // 8 bytes
		{Name: "c", Type: TypeVarchar},
		{Name: "d", Type: TypeHLL},
	}, DUP, 0, Lexicographic, 0, -1)

	// null bitmap: ceil(4/8) = 1 byte, + 1 + 8 = 10; varchar/HLL contribute 0.
	assert.Equal(t, 10, schema.RowWidth())
}
