package report

import "strings"

// joinShellWords renders command as a single shell-quoted line, the inverse
// of mattn/go-shellwords' Parse used on the read side. go-shellwords only
// parses; it has no quoting counterpart, so the handful of characters that
// force quoting are handled directly here.
func joinShellWords(command []string) string {
	parts := make([]string, len(command))
	for i, arg := range command {
		parts[i] = quoteShellWord(arg)
	}
	return strings.Join(parts, " ")
}

func quoteShellWord(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`*?[]{}()|&;<>#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
