package executions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		name string
		code string
		want Language
	}{
		{"shell first token", "ls -la /tmp", LanguageShell},
		{"shebang", "#!/bin/sh\necho hi", LanguageShell},
		{"python import", "import os\nprint(os.getcwd())", LanguagePython},
		{"python def", "def foo():\n    return 1\n", LanguagePython},
		{"python decorator", "@staticmethod\ndef foo():\n    pass\n", LanguagePython},
		{"shell operator chain", "cat file.txt | grep foo && echo done", LanguageShell},
		{"ambiguous short snippet defaults python", "x = 1", LanguagePython},
		{"git command", "git status", LanguageShell},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectLanguage(tc.code))
		})
	}
}

func TestDerivePriority(t *testing.T) {
	cases := []struct {
		name string
		code string
		want int
	}{
		{"short one-liner gets boosted", "print(1)", 8},
		{"long-running marker lowers priority", "time.sleep(60)\nprint('done')", 3},
		{"very long snippet lowers priority", longCode(40), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, derivePriority(tc.code))
		})
	}

	t.Run("clamped to [1,10]", func(t *testing.T) {
		p := derivePriority("x = 1")
		assert.GreaterOrEqual(t, p, 1)
		assert.LessOrEqual(t, p, 10)
	})
}

func longCode(lines int) string {
	s := ""
	for i := 0; i < lines; i++ {
		s += "x = 1\n"
	}
	return s
}
