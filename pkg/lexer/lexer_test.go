package lexer

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/token"
	"github.com/xplshn/jcc/pkg/util"
)

func lex(t *testing.T, src string) []token.Token {
	t.Helper()
	toks, err := Tokenize([]rune(src), 0, config.NewConfig())
	require.NoError(t, err)
	return toks
}

func kinds(toks []token.Token) []token.Type {
	out := make([]token.Type, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func TestPunctuators(t *testing.T) {
	got := kinds(lex(t, "a += b++ << 2 >>= c != d && e -> f ... g <= ~h"))
	want := []token.Type{
		token.Ident, token.PlusEq, token.Ident, token.Inc, token.Shl, token.Number,
		token.ShrEq, token.Ident, token.Neq, token.Ident, token.AndAnd, token.Ident,
		token.Arrow, token.Ident, token.Dots, token.Ident, token.Lte, token.Complement,
		token.Ident, token.EOF,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("token kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	toks := lex(t, "unsigned long intx _y2 return")
	assert.Equal(t, []token.Type{token.Unsigned, token.Long, token.Ident, token.Ident, token.Return, token.EOF}, kinds(toks))
	assert.Equal(t, "intx", toks[2].Value)
	assert.Equal(t, "_y2", toks[3].Value)
}

func TestNumbersKeepTheirSpelling(t *testing.T) {
	toks := lex(t, "42 0x1F 017 10u 7UL 3000000000")
	var vals []string
	for _, tok := range toks[:len(toks)-1] {
		require.Equal(t, token.Number, tok.Type)
		vals = append(vals, tok.Value)
	}
	assert.Equal(t, []string{"42", "0x1F", "017", "10u", "7UL", "3000000000"}, vals)
}

func TestStringEscapes(t *testing.T) {
	toks := lex(t, `"a\n\t\x41\101\"\\"`)
	require.Equal(t, token.String, toks[0].Type)
	assert.Equal(t, "a\n\tAA\"\\", toks[0].Value)
}

func TestCharLiterals(t *testing.T) {
	toks := lex(t, `'a' '\n' '\0' '\xff'`)
	var vals []string
	for _, tok := range toks[:4] {
		vals = append(vals, tok.Value)
	}
	// plain char is signed by default
	assert.Equal(t, []string{"97", "10", "0", "-1"}, vals)
}

func TestCommentsAndDirectivesAreSkipped(t *testing.T) {
	var out bytes.Buffer
	util.Output = &out
	src := "#include <stdio.h>\n// line\nint /* block\n comment */ x;\n  #define A \\\n 1\n"
	toks := lex(t, src)
	assert.Equal(t, []token.Type{token.Int, token.Ident, token.Semi, token.EOF}, kinds(toks))
	assert.Equal(t, 3, toks[0].Line)
	assert.Equal(t, 4, toks[1].Line, "position survives a multi-line comment")
	assert.Contains(t, out.String(), "[-Wdirective]")
}

func TestPositions(t *testing.T) {
	toks := lex(t, "int\n  foo = 1;")
	assert.Equal(t, 1, toks[0].Line)
	assert.Equal(t, 1, toks[0].Column)
	assert.Equal(t, 3, toks[0].Len)
	assert.Equal(t, 2, toks[1].Line)
	assert.Equal(t, 3, toks[1].Column)
}

func TestLexErrors(t *testing.T) {
	tests := []struct{ name, src string }{
		{"unexpected character", "int $x;"},
		{"unterminated string", `"abc`},
		{"unterminated comment", "/* never ends"},
		{"empty char", "''"},
		{"float", "1.5"},
		{"bad suffix", "12abc"},
		{"bare hex escape", `"\x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize([]rune(tt.src), 0, config.NewConfig())
			require.Error(t, err)
			assert.True(t, util.IsKind(err, util.ErrSyntax), "got %v", err)
		})
	}
}

func TestDirectivesRejectedWhenSkippingIsOff(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatSkipDirectives, false)
	_, err := Tokenize([]rune("#pragma once\nint x;"), 0, cfg)
	assert.Error(t, err)
}
