package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World!", "hello-world"},
		{"  --Already-Slugged--  ", "already-slugged"},
		{"Crème brûlée à la carte", "creme-brulee-a-la-carte"},
		{"Straße & Smørrebrød", "strasse-smorrebrod"},
		{"Łódź 2024", "lodz-2024"},
		{"Привіт, світ", "pryvit-svit"},
		{"multiple   spaces\tand\nnewlines", "multiple-spaces-and-newlines"},
		{"ﬁle ½", "file-1-2"},
		{"", Fallback},
		{"!!!", Fallback},
		{"日本語", Fallback},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Make(tt.in))
		})
	}
}

func TestWithSuffix(t *testing.T) {
	assert.Equal(t, "hello-world", WithSuffix("hello-world", 0))
	assert.Equal(t, "hello-world-1", WithSuffix("hello-world", 1))
	assert.Equal(t, "hello-world-12", WithSuffix("hello-world", 12))
}
