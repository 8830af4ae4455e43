package util

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm prompts for a yes/no answer on in. Anything but "y"/"yes"
// (case-insensitive) declines.
func Confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("cannot read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ErrDeclined is returned when the user answers no to a destructive prompt.
var ErrDeclined = fmt.Errorf("aborted")

// GuardDestructive gates a destructive operation. Forced invocations pass;
// structured output modes must be forced because they never prompt; text
// mode asks interactively.
func GuardDestructive(o *Output, in io.Reader, out io.Writer, force bool, prompt string) error {
	if force {
		return nil
	}
	if o.Structured() {
		return NewUsageError("%s output requires --force for destructive operations", o.Format)
	}
	ok, err := Confirm(in, out, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDeclined
	}
	return nil
}
