package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFtsMatchExpr(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  string
	}{
		{"empty query", "", ""},
		{"single term", "golang", `"golang"*`},
		{"multiple terms joined by OR", "golang sqlite", `"golang"* OR "sqlite"*`},
		{"quotes stripped from terms", `say "hi"`, `"say"* OR "hi"*`},
		{"whitespace-only query", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ftsMatchExpr(tc.query))
		})
	}
}
