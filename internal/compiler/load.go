package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/FilamentGames/rulescript/internal/ir"
)

// LoadMode controls how errors are handled while loading tables.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes.
const (
	ErrCodeGeneric     = "E001" // generic/unknown error
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoTables    = "E007" // no tables defined

	ErrCodeRuleField  = "E101" // bad rule field
	ErrCodeCondition  = "E102" // bad condition
	ErrCodeAction     = "E103" // bad action
	ErrCodeResolvable = "E104" // bad value, scope or resolvable
)

// LoadResult holds the tables compiled from a directory or source.
// Tables are sorted by name.
type LoadResult struct {
	Tables    []*ir.RuleTable
	FileCount int
}

// Table returns the table called name, or nil.
func (r *LoadResult) Table(name string) *ir.RuleTable {
	for _, t := range r.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// LoadError is an error from loading or compiling CUE rule tables.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir loads every .cue file of the package in dir and compiles the
// tables under the top-level "table" field.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result, errs := compileTables(value, mode)
	if result != nil {
		result.FileCount = len(files)
	}
	return result, errs
}

// LoadSource compiles the tables of a single CUE source.
func LoadSource(filename string, src []byte, mode LoadMode) (*LoadResult, []error) {
	value := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	result, errs := compileTables(value, mode)
	if result != nil {
		result.FileCount = 1
	}
	return result, errs
}

// LoadFile reads and compiles one .cue file.
func LoadFile(path string, mode LoadMode) (*LoadResult, []error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading %s: %v", path, err)}}
	}
	return LoadSource(path, src, mode)
}

func compileTables(value cue.Value, mode LoadMode) (*LoadResult, []error) {
	var errs []error
	result := &LoadResult{}

	tablesVal := value.LookupPath(cue.ParsePath("table"))
	if tablesVal.Exists() {
		iter, err := tablesVal.Fields()
		if err != nil {
			return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating tables: %v", err)}}
		}
		for iter.Next() {
			table, err := CompileTable(iter.Value())
			if err != nil {
				errs = append(errs, convertCompileError(err, "table."+iter.Label()))
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			result.Tables = append(result.Tables, table)
		}
	}

	if len(result.Tables) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoTables, Message: "no tables found under \"table\""})
	}
	sort.Slice(result.Tables, func(i, j int) bool { return result.Tables[i].Name < result.Tables[j].Name })
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s: %s", context, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// MapFieldToErrorCode maps a compile error field path to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case containsSegment(field, "query"), containsSegment(field, "target"),
		containsSegment(field, "args"), containsSegment(field, "scope"),
		containsSegment(field, "register"):
		return ErrCodeResolvable
	case containsSegment(field, "conditions"):
		return ErrCodeCondition
	case containsSegment(field, "actions"):
		return ErrCodeAction
	case containsSegment(field, "rules"):
		return ErrCodeRuleField
	default:
		return ErrCodeGeneric
	}
}

// containsSegment reports whether a dotted field path has a segment named
// name, ignoring list indexes.
func containsSegment(path, name string) bool {
	for _, seg := range strings.Split(path, ".") {
		if j := strings.IndexByte(seg, '['); j >= 0 {
			seg = seg[:j]
		}
		if seg == name {
			return true
		}
	}
	return false
}
