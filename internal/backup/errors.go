package backup

import (
	"fmt"
	"strings"
)

// ValidationError reports a snapshot that could not be applied because of
// its content. Nothing was written. Summary lists the steps that had been
// applied, and then rolled back, before the failure.
type ValidationError struct {
	Summary []string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid backup: " + e.Message
}

var _ error = (*ValidationError)(nil)

// invalidInput is raised inside the restore transaction and converted into a
// ValidationError once the transaction has rolled back.
type invalidInput struct {
	msg string
}

func (e *invalidInput) Error() string {
	return e.msg
}

func invalidf(format string, args ...any) error {
	return &invalidInput{msg: fmt.Sprintf(format, args...)}
}

// prefixInvalid adds context to an invalidInput and passes other errors on.
func prefixInvalid(err error, format string, args ...any) error {
	if inv, ok := err.(*invalidInput); ok {
		return &invalidInput{msg: fmt.Sprintf(format, args...) + ": " + inv.msg}
	}
	return err
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, pluralForm)
}

func joinLines(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
