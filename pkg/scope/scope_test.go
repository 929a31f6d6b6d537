package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplshn/jcc/pkg/types"
)

func TestShadowingAndExit(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Declare(&Symbol{Name: "x", Type: types.IntType, Local: 0})
	require.True(t, ok)

	tbl.Enter()
	_, ok = tbl.Declare(&Symbol{Name: "x", Type: types.LongType, Local: 1})
	require.True(t, ok)
	_, ok = tbl.Declare(&Symbol{Name: "x", Type: types.LongType})
	assert.False(t, ok, "redeclaration in the same scope")

	sym, ok := tbl.Resolve("x")
	require.True(t, ok)
	assert.Equal(t, types.LongType, sym.Type)

	popped := tbl.Exit()
	require.Len(t, popped, 1)
	assert.Equal(t, 1, popped[0].Uses)

	sym, ok = tbl.Resolve("x")
	require.True(t, ok)
	assert.Equal(t, types.IntType, sym.Type)
	assert.True(t, tbl.AtFileScope())
}

func TestResolveMissing(t *testing.T) {
	tbl := NewTable()
	tbl.Enter()
	_, ok := tbl.Resolve("nope")
	assert.False(t, ok)
	assert.Nil(t, NewTable().Exit(), "file scope is never popped")
}

func TestGlobalsKeepDeclarationOrder(t *testing.T) {
	tbl := NewTable()
	for _, name := range []string{"puts", "printf", "main"} {
		tbl.Declare(&Symbol{Name: name, Kind: Func})
	}
	tbl.Enter()
	tbl.Declare(&Symbol{Name: "local"})

	var names []string
	for _, s := range tbl.Globals() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"puts", "printf", "main"}, names)
	assert.True(t, tbl.Shadows("main"))
}
