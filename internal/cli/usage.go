package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

// UsageError marks a command-line mistake, as opposed to a failed transfer.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// IsUsage reports whether err came from bad arguments or flags.
func IsUsage(err error) bool {
	var u *UsageError
	return errors.As(err, &u)
}

// ExactArgs is cobra.ExactArgs reporting a UsageError.
func ExactArgs(n int) cobra.PositionalArgs {
	check := cobra.ExactArgs(n)
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

// FlagError wraps flag parse failures; install with SetFlagErrorFunc.
func FlagError(_ *cobra.Command, err error) error {
	return &UsageError{Err: err}
}
