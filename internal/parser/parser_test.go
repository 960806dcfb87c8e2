package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"accwatch/internal/accounts"
)

func TestParseExtractsPairsFromNoise(t *testing.T) {
	text := "foo bar@x.com:Secr3t! baz qux@y.com qux2y2pw"
	pairs := Parse(text)
	require.Equal(t, []accounts.CredentialPair{
		{Identity: "bar@x.com", Secret: "Secr3t!"},
		{Identity: "qux@y.com", Secret: "qux2y2pw"},
	}, pairs)
}

func TestParseSeparators(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []accounts.CredentialPair
	}{
		{
			name: "colon",
			in:   "a@b.com:pw1",
			want: []accounts.CredentialPair{{Identity: "a@b.com", Secret: "pw1"}},
		},
		{
			name: "whitespace",
			in:   "a@b.com\tpw1",
			want: []accounts.CredentialPair{{Identity: "a@b.com", Secret: "pw1"}},
		},
		{
			name: "multiline",
			in:   "a@b.com:pw1\nc@d.org pw2\n",
			want: []accounts.CredentialPair{
				{Identity: "a@b.com", Secret: "pw1"},
				{Identity: "c@d.org", Secret: "pw2"},
			},
		},
		{
			name: "no identity",
			in:   "just some prose without credentials",
			want: nil,
		},
		{
			name: "identity without secret",
			in:   "dangling@x.com",
			want: nil,
		},
		{
			name: "empty",
			in:   "",
			want: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Parse(tc.in))
		})
	}
}

func TestParseKeepsDuplicates(t *testing.T) {
	pairs := Parse("a@b.com:one a@b.com:two")
	require.Len(t, pairs, 2)
	require.Equal(t, "one", pairs[0].Secret)
	require.Equal(t, "two", pairs[1].Secret)
}

func TestParseIdempotent(t *testing.T) {
	text := "x u@v.net:s3cret y u@v.net:s3cret w@z.io pw"
	require.Equal(t, Dedup(Parse(text)), Dedup(Parse(text)))
}

func TestDedupKeepsFirstOccurrence(t *testing.T) {
	in := []accounts.CredentialPair{
		{Identity: "a@b.com", Secret: "p1"},
		{Identity: "a@b.com", Secret: "p2"},
		{Identity: "b@c.com", Secret: "p3"},
	}
	out := Dedup(in)
	require.Equal(t, []accounts.CredentialPair{
		{Identity: "a@b.com", Secret: "p1"},
		{Identity: "b@c.com", Secret: "p3"},
	}, out)
}

func TestDedupEmpty(t *testing.T) {
	require.Nil(t, Dedup(nil))
	require.Nil(t, Dedup([]accounts.CredentialPair{}))
}
