package supervisor

import (
	"bufio"
	"strings"
)

// ParseConfig parses the device's config.txt/command.txt dialect
// (spec.md §6): newline-separated (any of \r\n, \r, \n) KEY=VALUE
// lines. Lines with no '=' or an empty value are dropped.
func ParseConfig(data []byte) map[string]string {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	out := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// RenderConfig is ParseConfig's inverse for the round-trip law in
// spec.md §8: keys must not contain '=', values must not contain
// CR/LF. Key order is not guaranteed to be stable across calls.
func RenderConfig(m map[string]string) []byte {
	var b strings.Builder
	for k, v := range m {
		if k == "" || v == "" {
			continue
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}
