package lexer

import "testing"

func TestNextToken_BasicPunctuation(t *testing.T) {
	input := `+ - * / % > < >= <= == != := = ( ) { } [ ] , . :`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{PLUS, "+"}, {MINUS, "-"}, {STAR, "*"}, {SLASH, "/"}, {PERCENT, "%"},
		{GT, ">"}, {LT, "<"}, {GE, ">="}, {LE, "<="}, {EQ, "=="}, {NE, "!="},
		{DECLARE, ":="}, {ASSIGN, "="},
		{LPAREN, "("}, {RPAREN, ")"}, {LBRACE, "{"}, {RBRACE, "}"},
		{LBRACKET, "["}, {RBRACKET, "]"}, {COMMA, ","}, {DOT, "."}, {COLON, ":"},
		{EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - type wrong. expected=%v, got=%v (literal %q)", i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestNextToken_KeywordsAndIdents(t *testing.T) {
	input := `true false nil and or not if else elseif then while for in do break continue func return end x _foo foo2`

	tests := []TokenType{
		TRUE, FALSE, NIL, AND, OR, NOT, IF, ELSE, ELSEIF, THEN,
		WHILE, FOR, IN, DO, BREAK, CONTINUE, FUNC, RETURN, END,
		IDENT, IDENT, IDENT, EOF,
	}

	l := New(input)
	for i, want := range tests {
		tok := l.NextToken()
		if tok.Type != want {
			t.Fatalf("tests[%d] - type wrong. expected=%v, got=%v (literal %q)", i, want, tok.Type, tok.Literal)
		}
	}
}

func TestNextToken_Numbers(t *testing.T) {
	tests := []struct {
		input string
		want  string
		line  int
	}{
		{"5", "5", 1},
		{".5", ".5", 1},
		{"5.", "5.", 1},
		{"3.14", "3.14", 1},
	}
	for _, tt := range tests {
		l := New(tt.input)
		tok := l.NextToken()
		if tok.Type != NUMBER {
			t.Fatalf("input %q: expected NUMBER, got %v (%s)", tt.input, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.want {
			t.Fatalf("input %q: expected literal %q, got %q", tt.input, tt.want, tok.Literal)
		}
	}
}

func TestNextToken_MalformedNumberTwoDots(t *testing.T) {
	l := New("1.2.3")
	tok := l.NextToken()
	if tok.Type != ILLEGAL {
		t.Fatalf("expected ILLEGAL for two dots in a number, got %v (%s)", tok.Type, tok.Literal)
	}
}

func TestNextToken_StringLiteralsAndEscapes(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hi"`, "hi"},
		{`'hi'`, "hi"},
		{`"a\nb"`, "a\nb"},
		{`"a\tb"`, "a\tb"},
		{`"a\\b"`, "a\\b"},
		{`"a\"b"`, "a\"b"},
		{`''`, ""},
	}
	for _, tt := range tests {
		l := New(tt.input)
		tok := l.NextToken()
		if tok.Type != STRING {
			t.Fatalf("input %q: expected STRING, got %v", tt.input, tok.Type)
		}
		if tok.Literal != tt.want {
			t.Fatalf("input %q: expected %q, got %q", tt.input, tt.want, tok.Literal)
		}
	}
}

func TestNextToken_UnfinishedStringErrors(t *testing.T) {
	for _, input := range []string{`"abc`, "\"abc\n\"", `'abc`} {
		l := New(input)
		tok := l.NextToken()
		if tok.Type != ILLEGAL {
			t.Fatalf("input %q: expected ILLEGAL for unterminated string, got %v", input, tok.Type)
		}
	}
}

func TestNextToken_BangWithoutEqualsIsIllegal(t *testing.T) {
	l := New("!")
	tok := l.NextToken()
	if tok.Type != ILLEGAL {
		t.Fatalf("expected ILLEGAL for bare '!', got %v", tok.Type)
	}
}

func TestNextToken_LineTrackingAcrossNewlines(t *testing.T) {
	input := "a\nb\n\nc"
	l := New(input)
	var lines []int
	for {
		tok := l.NextToken()
		if tok.Type == EOF {
			break
		}
		lines = append(lines, tok.Line)
	}
	want := []int{1, 2, 4}
	if len(lines) != len(want) {
		t.Fatalf("expected %d tokens, got %d (%v)", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("token %d: expected line %d, got %d", i, want[i], lines[i])
		}
	}
}

func TestTokenize_StopsAtFirstIllegalToken(t *testing.T) {
	l := New("x := 1 !")
	toks, err := l.Tokenize()
	if err == nil {
		t.Fatalf("expected an error from an unexpected '!' token")
	}
	if len(toks) != 3 { // x, :=, 1
		t.Fatalf("expected 3 tokens before the error, got %d (%v)", len(toks), toks)
	}
}
