package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxOutputSize is the maximum allowed size for output to prevent memory exhaustion
const MaxOutputSize = 10 * 1024 * 1024 // 10MB

// writeString writes a string to the writer with error checking and size limits
func writeString(w io.Writer, s string) error {
	if len(s) > MaxOutputSize {
		return fmt.Errorf("output size %d exceeds maximum allowed size %d",
			len(s), MaxOutputSize)
	}

	n, err := fmt.Fprint(w, s)
	if err != nil {
		return fmt.Errorf("failed to write output (wrote %d bytes): %w", n, err)
	}

	if f, ok := w.(interface{ Flush() error }); ok {
		if flushErr := f.Flush(); flushErr != nil {
			return fmt.Errorf("failed to flush output: %w", flushErr)
		}
	}

	return nil
}

// writeOutput is a helper function to write formatted output with error checking and size limits
func writeOutput(w io.Writer, format string, args ...interface{}) error {
	return writeString(w, fmt.Sprintf(format, args...))
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	return writeString(w, string(data)+"\n")
}

// checkDeferredErr records the error of a deferred call unless the function
// already failed. Example: defer checkDeferredErr(&err, "close vault", s.Close)
func checkDeferredErr(err *error, op string, fn func() error) {
	cerr := fn()
	if cerr == nil {
		return
	}

	log.Warnf("Error in deferred %s: %v", op, cerr)
	if *err == nil {
		*err = fmt.Errorf("%s: %w", op, cerr)
	}
}

// SecurePrint prints sensitive information, redacting the argument list
// once written.
func SecurePrint(w io.Writer, format string, args ...interface{}) error {
	defer func() {
		for i := range args {
			if _, ok := args[i].(string); ok {
				args[i] = "[REDACTED]"
			}
		}
	}()

	return writeOutput(w, format, args...)
}
