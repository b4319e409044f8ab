// Copyright 2020-2023 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parser

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenizer(text string) *Tokenizer {
	return NewTokenizer(strings.Split(text, "\n"))
}

func TestTokenizerStream(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer(`
	# leading comment
	name: "value"  # trailing comment
	nested { id: 42 }
	`)
	var tokens []string
	for !tok.AtEnd() {
		tokens = append(tokens, tok.Token())
		tok.NextToken()
	}
	assert.Equal(t, []string{
		"name", ":", `"value"`,
		"nested", "{", "id", ":", "42", "}",
	}, tokens)
}

func TestTokenizerPositionsMonotone(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer("a: 1\n  bb: 22 # x\n\n  ccc: \"3\"\n")
	prevLine, prevCol := -1, -1
	for !tok.AtEnd() {
		if tok.line == prevLine {
			assert.Greater(t, tok.column, prevCol)
		} else {
			assert.Greater(t, tok.line, prevLine)
		}
		prevLine, prevCol = tok.line, tok.column
		tok.NextToken()
	}
}

func TestTokenizerConsume(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer("foo: 1")
	assert.True(t, tok.LookingAt("foo"))
	assert.False(t, tok.TryConsume("bar"))
	assert.True(t, tok.TryConsume("foo"))
	require.NoError(t, tok.Consume(":"))
	err := tok.Consume("}")
	require.Error(t, err)
	assert.Equal(t, `Expected "}".`, err.(*ParseError).Message)
	assert.True(t, tok.TryConsume("1"))
	assert.True(t, tok.AtEnd())
}

func TestTokenizerIdentifiers(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer("foo_bar 123abc : 42")
	id, err := tok.ConsumeIdentifier()
	require.NoError(t, err)
	assert.Equal(t, "foo_bar", id)

	// 123abc lexes as one token, acceptable as identifier-or-number only
	_, err = tok.ConsumeIdentifier()
	require.Error(t, err)
	assert.Equal(t, "Expected identifier.", err.(*ParseError).Message)
	id, err = tok.ConsumeIdentifierOrNumber()
	require.NoError(t, err)
	assert.Equal(t, "123abc", id)

	_, err = tok.ConsumeIdentifierOrNumber()
	require.Error(t, err)
	assert.Contains(t, err.(*ParseError).Message, "Expected identifier or number")
}

func TestTokenizerIntegers(t *testing.T) {
	t.Parallel()
	cases := []struct {
		text string
		want int64
	}{
		{"42", 42},
		{"042", 34},
		{"0x2A", 42},
		{"0X2a", 42},
		{"-0x2A", -42},
		{"-42", -42},
		{"0", 0},
		{"-2147483648", math.MinInt32},
		{"2147483647", math.MaxInt32},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			tok := newTestTokenizer(tc.text)
			v, err := tok.ConsumeInt32()
			require.NoError(t, err)
			assert.Equal(t, tc.want, int64(v))
			assert.True(t, tok.AtEnd())
		})
	}
}

func TestTokenizerInteger64(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer("9223372036854775807 -9223372036854775808 18446744073709551615")
	i, err := tok.ConsumeInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), i)
	i, err = tok.ConsumeInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), i)
	u, err := tok.ConsumeUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), u)
}

func TestTokenizerIntegerErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		text string
		call func(tok *Tokenizer) error
	}{
		{"int32 overflow", "2147483648", func(tok *Tokenizer) error { _, err := tok.ConsumeInt32(); return err }},
		{"uint32 negative", "-1", func(tok *Tokenizer) error { _, err := tok.ConsumeUint32(); return err }},
		{"uint32 overflow", "4294967296", func(tok *Tokenizer) error { _, err := tok.ConsumeUint32(); return err }},
		{"int64 overflow", "9223372036854775808", func(tok *Tokenizer) error { _, err := tok.ConsumeInt64(); return err }},
		{"not a number", "zzz", func(tok *Tokenizer) error { _, err := tok.ConsumeInt64(); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.call(newTestTokenizer(tc.text))
			require.Error(t, err)
			pe := err.(*ParseError)
			assert.Equal(t, "Couldn't parse integer: "+tc.text, pe.Message)
			// the failed literal itself is the previous token by the time the
			// error is raised
			assert.Equal(t, 1, pe.Line)
			assert.Equal(t, 1, pe.Column)
		})
	}
}

func TestTokenizerFloats(t *testing.T) {
	t.Parallel()
	cases := []struct {
		text string
		want float64
	}{
		{"3.14", 3.14},
		{"3.14f", 3.14},
		{"3.14F", 3.14},
		{"-1.5", -1.5},
		{".5", 0.5},
		{"1e+10", 1e+10},
		{"2.5e-3", 2.5e-3},
		{"12", 12},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			tok := newTestTokenizer(tc.text)
			v, err := tok.ConsumeFloat()
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
		})
	}

	for _, text := range []string{"inf", "INF", "Infinity", "infinity"} {
		v, err := newTestTokenizer(text).ConsumeFloat()
		require.NoError(t, err)
		assert.True(t, math.IsInf(v, 1), text)
	}
	for _, text := range []string{"-inf", "-Infinity"} {
		v, err := newTestTokenizer(text).ConsumeFloat()
		require.NoError(t, err)
		assert.True(t, math.IsInf(v, -1), text)
	}
	v, err := newTestTokenizer("nan").ConsumeFloat()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))

	_, err = newTestTokenizer("notanumber").ConsumeFloat()
	require.Error(t, err)
	assert.Equal(t, "Couldn't parse float: notanumber", err.(*ParseError).Message)
}

func TestTokenizerBools(t *testing.T) {
	t.Parallel()
	for _, text := range []string{"true", "True", "t", "1"} {
		v, err := newTestTokenizer(text).ConsumeBool()
		require.NoError(t, err)
		assert.True(t, v, text)
	}
	for _, text := range []string{"false", "False", "f", "0"} {
		v, err := newTestTokenizer(text).ConsumeBool()
		require.NoError(t, err)
		assert.False(t, v, text)
	}
	_, err := newTestTokenizer("yes").ConsumeBool()
	require.Error(t, err)
	assert.Equal(t, `Expected "true" or "false", found "yes".`, err.(*ParseError).Message)
}

func TestTokenizerStrings(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		text string
		want string
	}{
		{"plain", `"hello"`, "hello"},
		{"single quotes", `'hello'`, "hello"},
		{"adjacent", `"a" "b"`, "ab"},
		{"adjacent mixed quotes", `"a" 'b' "c"`, "abc"},
		{"control escapes", `"\a\b\f\n\r\t\v"`, "\a\b\f\n\r\t\v"},
		{"quote escapes", `"\\\'\"\?"`, `\'"?`},
		{"octal", `"\1234"`, "\x53" + "4"},
		{"octal single digit", `"\0abc"`, "\x00abc"},
		{"octal stops at three", `"\0011"`, "\x01" + "1"},
		{"hex two digits", `"\x213"`, "\x21" + "3"},
		{"hex one digit", `"\xFHello"`, "\x0f" + "Hello"},
		{"unicode bmp", `"\u00e9"`, "é"},
		{"unicode full", `"\U0001F600"`, "\U0001f600"},
		{"unknown escape", `"\z\q"`, "zq"},
		{"empty", `""`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tok := newTestTokenizer(tc.text)
			v, err := tok.ConsumeString()
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
			assert.True(t, tok.AtEnd())
		})
	}
}

func TestTokenizerStringErrors(t *testing.T) {
	t.Parallel()
	_, err := newTestTokenizer(`"abc`).ConsumeString()
	require.Error(t, err)
	assert.Equal(t, `String missing ending quote: "abc`, err.(*ParseError).Message)

	_, err = newTestTokenizer(`"abc\`).ConsumeString()
	require.Error(t, err)
	assert.Contains(t, err.(*ParseError).Message, "String missing ending quote")

	_, err = newTestTokenizer(`42`).ConsumeString()
	require.Error(t, err)
	assert.Equal(t, "Expected string.", err.(*ParseError).Message)

	// strings do not span newlines
	_, err = newTestTokenizer("\"abc\ndef\"").ConsumeString()
	require.Error(t, err)
	assert.Contains(t, err.(*ParseError).Message, "String missing ending quote")
}

func TestTokenizerByteStrings(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		text string
		want []byte
	}{
		{"plain", `"abc"`, []byte("abc")},
		{"high byte", `"\xFF"`, []byte{0xff}},
		{"octal overflow wraps", `"\400"`, []byte{0x00}},
		{"unicode truncates", `"\u00FF"`, []byte{0xff}},
		{"adjacent", `"\x01" "\x02"`, []byte{1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v, err := newTestTokenizer(tc.text).ConsumeByteString()
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestTryConsumeAnyScalar(t *testing.T) {
	t.Parallel()
	for _, text := range []string{`"str"`, `'str' "more"`, "42", "-1.5", "ident", "true"} {
		tok := newTestTokenizer(text)
		assert.True(t, tok.TryConsumeAnyScalar(), text)
		assert.True(t, tok.AtEnd(), text)
	}
	for _, text := range []string{"{", "[", ":", ""} {
		tok := newTestTokenizer(text)
		assert.False(t, tok.TryConsumeAnyScalar(), "%q", text)
	}
}

func TestParseErrorFormat(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "3:5 : boom", (&ParseError{Message: "boom", Line: 3, Column: 5}).Error())
	assert.Equal(t, "3 : boom", (&ParseError{Message: "boom", Line: 3}).Error())
	assert.Equal(t, "boom", (&ParseError{Message: "boom"}).Error())
}

func TestTokenizerErrorPositions(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer("a:\n  b")
	err := tok.Errorf("x")
	assert.Equal(t, 1, err.Line)
	assert.Equal(t, 1, err.Column)
	tok.NextToken() // past a
	tok.NextToken() // past :
	assert.Equal(t, "b", tok.Token())
	err = tok.Errorf("x")
	assert.Equal(t, 2, err.Line)
	assert.Equal(t, 3, err.Column)
	err = tok.ErrorfAtPrevious("x")
	assert.Equal(t, 1, err.Line)
	assert.Equal(t, 2, err.Column)
}
