//go:build darwin

package alert

import "os/exec"

// show uses osascript's display alert, which blocks until dismissed.
func show(title, message string) error {
	script := `display alert "` + escapeAppleScript(title) + `" message "` + escapeAppleScript(message) +
		`" as critical buttons {"OK"} default button "OK"`
	return exec.Command("osascript", "-e", script).Run()
}

// escapeAppleScript escapes a string for safe embedding in an AppleScript
// double-quoted string.
func escapeAppleScript(s string) string {
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"':
			result = append(result, '\\', '"')
		case ch == '\\':
			result = append(result, '\\', '\\')
		case ch == '\n':
			result = append(result, '\\', 'n')
		case ch == '\r':
			result = append(result, '\\', 'r')
		case ch == '\t':
			result = append(result, '\\', 't')
		case ch < 0x20 || ch == 0x7f:
			// Strip other control characters
			continue
		default:
			result = append(result, ch)
		}
	}
	return string(result)
}
