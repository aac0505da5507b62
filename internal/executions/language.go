package executions

import (
	"regexp"
	"strings"
)

// shellFirstTokens are command names whose presence as the first token of a
// single-line submission short-circuits detection straight to shell, per
// spec §4.2 ("For single-line input the first-token shell-command check
// short-circuits").
var shellFirstTokens = map[string]bool{
	"ls": true, "cd": true, "cat": true, "grep": true, "find": true, "echo": true,
	"pwd": true, "mkdir": true, "rm": true, "cp": true, "mv": true, "chmod": true,
	"curl": true, "wget": true, "git": true, "docker": true, "make": true, "ps": true,
	"kill": true, "tar": true, "sed": true, "awk": true, "head": true, "tail": true,
	"export": true, "source": true, "ssh": true, "scp": true, "sudo": true, "apt": true,
}

var (
	shellOperatorRe = regexp.MustCompile(`\||&&|\|\||>>|<<|[<>]|;`)
	pyDefRe         = regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(`)
	pyImportRe      = regexp.MustCompile(`(?m)^\s*(import|from)\s+\w`)
	pyDecoratorRe   = regexp.MustCompile(`(?m)^\s*@\w+`)
	pyColonBlockRe  = regexp.MustCompile(`(?m):\s*$`)
	pyPrintRe       = regexp.MustCompile(`\bprint\s*\(`)
)

// DetectLanguage classifies code as python or shell via a small weighted
// vote over pattern families, per spec §4.2. Deterministic: identical input
// always yields the same classification.
func DetectLanguage(code string) Language {
	trimmed := strings.TrimSpace(code)
	lines := strings.Split(trimmed, "\n")

	if len(lines) == 1 {
		first := strings.Fields(trimmed)
		if len(first) > 0 && shellFirstTokens[first[0]] {
			return LanguageShell
		}
	}

	var shellVotes, pyVotes int

	if len(lines) > 0 {
		first := strings.Fields(lines[0])
		if len(first) > 0 && shellFirstTokens[first[0]] {
			shellVotes += 2
		}
	}
	if shellOperatorRe.MatchString(trimmed) {
		shellVotes++
	}
	if strings.Contains(trimmed, "#!/bin/sh") || strings.Contains(trimmed, "#!/bin/bash") {
		shellVotes += 3
	}

	if pyImportRe.MatchString(trimmed) {
		pyVotes += 2
	}
	if pyDefRe.MatchString(trimmed) {
		pyVotes += 2
	}
	if pyDecoratorRe.MatchString(trimmed) {
		pyVotes++
	}
	if pyColonBlockRe.MatchString(trimmed) {
		pyVotes++
	}
	if pyPrintRe.MatchString(trimmed) {
		pyVotes++
	}

	if shellVotes > pyVotes {
		return LanguageShell
	}
	return LanguagePython
}
