package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/FilamentGames/rulescript/internal/compiler"
)

// loadTables compiles the tables of a CUE package directory or of a single
// .cue file.
func loadTables(path string, mode compiler.LoadMode) (*compiler.LoadResult, []error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, []error{&compiler.LoadError{Code: compiler.ErrCodeNotFound, Message: fmt.Sprintf("rules path not found: %s", path)}}
		}
		return nil, []error{&compiler.LoadError{Code: compiler.ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules path: %v", err)}}
	}
	if info.IsDir() {
		return compiler.LoadDir(path, mode)
	}
	return compiler.LoadFile(path, mode)
}

// errorCode extracts the code and message of a load or compile error.
func errorCode(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.MapFieldToErrorCode(compileErr.Field), compileErr.Field + ": " + compileErr.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}

// position formats the source position of err, or "".
func position(err error) string {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) && compileErr.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d", compileErr.Pos.Filename(), compileErr.Pos.Line(), compileErr.Pos.Column())
	}
	return ""
}

// outputLoadErrors reports load or compile errors and returns the command
// error (exit code 2).
func outputLoadErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.JSON() {
		all := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := errorCode(err)
			all[i] = CLIError{Code: code, Message: message}
		}
		if err := formatter.Failure(all[0].Code, all[0].Message, all); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, message := errorCode(err)
		if pos := position(err); pos != "" {
			fmt.Fprintln(formatter.Writer, pos)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}
