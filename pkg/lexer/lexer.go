package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/token"
	"github.com/xplshn/jcc/pkg/util"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	cfg       *config.Config
	err       error
}

func NewLexer(source []rune, fileIndex int, cfg *config.Config) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1, cfg: cfg,
	}
}

// Tokenize scans the whole source. The returned slice always ends with EOF.
func Tokenize(source []rune, fileIndex int, cfg *config.Config) ([]token.Token, error) {
	l := NewLexer(source, fileIndex, cfg)
	var toks []token.Token
	for {
		tok := l.Next()
		if l.err != nil {
			return nil, l.err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

// Err returns the first error the lexer ran into.
func (l *Lexer) Err() error { return l.err }

func (l *Lexer) fail(tok token.Token, format string, args ...interface{}) token.Token {
	if l.err == nil {
		l.err = util.NewError(util.ErrSyntax, tok, format, args...)
	}
	l.pos = len(l.source)
	return l.makeToken(token.EOF, "", l.pos, l.column, l.line)
}

func (l *Lexer) Next() token.Token {
	for {
		l.skipWhitespaceAndComments()
		if l.err != nil {
			return l.makeToken(token.EOF, "", l.pos, l.column, l.line)
		}
		startPos, startCol, startLine := l.pos, l.column, l.line

		if l.isAtEnd() {
			return l.makeToken(token.EOF, "", startPos, startCol, startLine)
		}

		ch := l.peek()
		if ch == '#' && l.atLineStart() {
			l.directive(startPos, startCol, startLine)
			continue
		}
		if unicode.IsLetter(ch) || ch == '_' {
			l.advance()
			return l.identifierOrKeyword(startPos, startCol, startLine)
		}
		if unicode.IsDigit(ch) {
			return l.numberLiteral(startPos, startCol, startLine)
		}

		l.advance()
		switch ch {
		case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine)
		case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine)
		case '{': return l.makeToken(token.LBrace, "", startPos, startCol, startLine)
		case '}': return l.makeToken(token.RBrace, "", startPos, startCol, startLine)
		case '[': return l.makeToken(token.LBracket, "", startPos, startCol, startLine)
		case ']': return l.makeToken(token.RBracket, "", startPos, startCol, startLine)
		case ';': return l.makeToken(token.Semi, "", startPos, startCol, startLine)
		case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine)
		case '?': return l.makeToken(token.Question, "", startPos, startCol, startLine)
		case ':': return l.makeToken(token.Colon, "", startPos, startCol, startLine)
		case '~': return l.makeToken(token.Complement, "", startPos, startCol, startLine)
		case '!': return l.matchThen('=', token.Neq, token.Not, startPos, startCol, startLine)
		case '^': return l.matchThen('=', token.XorEq, token.Xor, startPos, startCol, startLine)
		case '%': return l.matchThen('=', token.RemEq, token.Rem, startPos, startCol, startLine)
		case '*': return l.matchThen('=', token.StarEq, token.Star, startPos, startCol, startLine)
		case '/': return l.matchThen('=', token.SlashEq, token.Slash, startPos, startCol, startLine)
		case '=': return l.matchThen('=', token.EqEq, token.Eq, startPos, startCol, startLine)
		case '+':
			return l.doubled('+', token.Inc, token.PlusEq, token.Plus, startPos, startCol, startLine)
		case '&':
			return l.doubled('&', token.AndAnd, token.AndEq, token.And, startPos, startCol, startLine)
		case '|':
			return l.doubled('|', token.OrOr, token.OrEq, token.Or, startPos, startCol, startLine)
		case '-':
			if l.match('>') {
				return l.makeToken(token.Arrow, "", startPos, startCol, startLine)
			}
			return l.doubled('-', token.Dec, token.MinusEq, token.Minus, startPos, startCol, startLine)
		case '<':
			return l.shift('<', token.Shl, token.ShlEq, token.Lte, token.Lt, startPos, startCol, startLine)
		case '>':
			return l.shift('>', token.Shr, token.ShrEq, token.Gte, token.Gt, startPos, startCol, startLine)
		case '.':
			if l.peek() == '.' && l.peekNext() == '.' {
				l.advance()
				l.advance()
				return l.makeToken(token.Dots, "", startPos, startCol, startLine)
			}
			return l.makeToken(token.Dot, "", startPos, startCol, startLine)
		case '"':
			return l.stringLiteral(startPos, startCol, startLine)
		case '\'':
			return l.charLiteral(startPos, startCol, startLine)
		}

		return l.fail(l.makeToken(token.EOF, "", startPos, startCol, startLine), "unexpected character '%c'", ch)
	}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) atLineStart() bool {
	for i := l.pos - 1; i >= 0; i-- {
		switch l.source[i] {
		case ' ', '\t':
			continue
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			l.advance()
		case '/':
			switch l.peekNext() {
			case '*':
				l.blockComment()
			case '/':
				for !l.isAtEnd() && l.peek() != '\n' {
					l.advance()
				}
			default:
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	startTok := l.makeToken(token.EOF, "", l.pos, l.column, l.line)
	startTok.Len = 2
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	l.fail(startTok, "unterminated block comment")
}

// directive skips a preprocessor line, honoring backslash continuations.
func (l *Lexer) directive(startPos, startCol, startLine int) {
	for !l.isAtEnd() && l.peek() != '\n' {
		if l.peek() == '\\' && l.peekNext() == '\n' {
			l.advance()
		}
		l.advance()
	}
	tok := l.makeToken(token.EOF, "", startPos, startCol, startLine)
	text := strings.TrimSpace(string(l.source[startPos:l.pos]))
	if !l.cfg.IsFeatureEnabled(config.FeatSkipDirectives) {
		l.fail(tok, "preprocessor directives are not supported: %s", text)
		return
	}
	util.Warn(l.cfg, config.WarnDirective, tok, "skipping preprocessor directive '%s'", text)
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		return l.makeToken(tokType, "", startPos, startCol, startLine)
	}
	return l.makeToken(token.Ident, value, startPos, startCol, startLine)
}

// numberLiteral keeps the literal's spelling, suffix included, as the token
// value. The parser decodes it.
func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	isHex := l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X')
	if isHex {
		l.advance()
		l.advance()
	}
	for {
		c := l.peek()
		if unicode.IsDigit(c) || (isHex && strings.ContainsRune("abcdefABCDEF", c)) {
			l.advance()
			continue
		}
		break
	}
	if l.peek() == '.' || (!isHex && (l.peek() == 'e' || l.peek() == 'E')) {
		return l.fail(l.makeToken(token.Number, "", startPos, startCol, startLine), "floating-point constants are not supported")
	}
	for strings.ContainsRune("uUlL", l.peek()) {
		l.advance()
	}
	if unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) {
		l.advance()
		return l.fail(l.makeToken(token.Number, "", startPos, startCol, startLine), "invalid suffix on integer constant")
	}
	return l.makeToken(token.Number, string(l.source[startPos:l.pos]), startPos, startCol, startLine)
}

func (l *Lexer) stringLiteral(startPos, startCol, startLine int) token.Token {
	var buf []byte
	for !l.isAtEnd() && l.peek() != '\n' {
		c := l.peek()
		if c == '"' {
			l.advance()
			return l.makeToken(token.String, string(buf), startPos, startCol, startLine)
		}
		l.advance()
		if c == '\\' {
			val, ok := l.decodeEscape(startPos, startCol, startLine)
			if !ok {
				return l.makeToken(token.EOF, "", l.pos, l.column, l.line)
			}
			buf = append(buf, byte(val))
			continue
		}
		buf = append(buf, string(c)...)
	}
	return l.fail(l.makeToken(token.String, "", startPos, startCol, startLine), "unterminated string literal")
}

func (l *Lexer) charLiteral(startPos, startCol, startLine int) token.Token {
	var word int64
	count := 0
	for l.peek() != '\'' && !l.isAtEnd() && l.peek() != '\n' {
		c := l.advance()
		val := int64(c)
		if c == '\\' {
			v, ok := l.decodeEscape(startPos, startCol, startLine)
			if !ok {
				return l.makeToken(token.EOF, "", l.pos, l.column, l.line)
			}
			val = v
		}
		word = (word << 8) | (val & 0xFF)
		count++
	}

	tok := l.makeToken(token.CharLit, "", startPos, startCol, startLine)
	if !l.match('\'') {
		return l.fail(tok, "unterminated character constant")
	}
	tok.Len = l.pos - startPos
	switch {
	case count == 0:
		return l.fail(tok, "empty character constant")
	case count > 1:
		util.Warn(l.cfg, config.WarnMultiChar, tok, "multi-character character constant")
	case l.cfg.IsFeatureEnabled(config.FeatSignedChar):
		word = int64(int8(word))
	}
	tok.Value = strconv.FormatInt(word, 10)
	return tok
}

var simpleEscapes = map[rune]int64{
	'n': '\n', 't': '\t', 'r': '\r', 'b': '\b', 'a': '\a', 'f': '\f', 'v': '\v',
	'\\': '\\', '\'': '\'', '"': '"', '?': '?',
}

func (l *Lexer) decodeEscape(startPos, startCol, startLine int) (int64, bool) {
	if l.isAtEnd() {
		l.fail(l.makeToken(token.EOF, "", l.pos, l.column, l.line), "unterminated escape sequence")
		return 0, false
	}
	c := l.advance()

	if c == 'x' {
		var val int64
		digits := 0
		for {
			d := hexDigit(l.peek())
			if d < 0 {
				break
			}
			val = val*16 + int64(d)
			l.advance()
			digits++
		}
		if digits == 0 {
			l.fail(l.makeToken(token.String, "", startPos, startCol, startLine), "\\x used with no following hex digits")
			return 0, false
		}
		return val & 0xFF, true
	}

	if c >= '0' && c <= '7' {
		val := int64(c - '0')
		for i := 0; i < 2 && l.peek() >= '0' && l.peek() <= '7'; i++ {
			val = val*8 + int64(l.advance()-'0')
		}
		return val & 0xFF, true
	}

	if val, ok := simpleEscapes[c]; ok {
		return val, true
	}
	util.Warn(l.cfg, config.WarnUnrecognizedEscape, l.makeToken(token.String, "", startPos, startCol, startLine), "unknown escape sequence '\\%c'", c)
	return int64(c), true
}

func hexDigit(c rune) int {
	switch {
	case c >= '0' && c <= '9': return int(c - '0')
	case c >= 'a' && c <= 'f': return int(c-'a') + 10
	case c >= 'A' && c <= 'F': return int(c-'A') + 10
	}
	return -1
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}

// doubled lexes the c, cc and c= family, e.g. '+', '++', '+='.
func (l *Lexer) doubled(c rune, twice, assign, single token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(c) {
		return l.makeToken(twice, "", sPos, sCol, sLine)
	}
	return l.matchThen('=', assign, single, sPos, sCol, sLine)
}

// shift lexes '<', '<=', '<<', '<<=' and their '>' mirrors.
func (l *Lexer) shift(c rune, shift, shiftAssign, cmpEq, cmp token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(c) {
		return l.matchThen('=', shiftAssign, shift, sPos, sCol, sLine)
	}
	return l.matchThen('=', cmpEq, cmp, sPos, sCol, sLine)
}
