package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// Site is a validated site configuration.
type Site struct {
	ReferenceSiteURL string   `json:"referenceSiteURL"`
	APIBase          string   `json:"apiBase,omitempty"`
	Modules          []string `json:"modules"`

	// Fixtures names a YAML fixtures file, relative to the configuration
	// directory, answering requests instead of APIBase.
	Fixtures string `json:"fixtures,omitempty"`
}

// HasModule reports whether module is enabled.
func (s *Site) HasModule(module string) bool {
	return slices.Contains(s.Modules, module)
}

// Error codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeNoSite    = "E101" // No site value declared
	ErrCodeSchema    = "E102" // Site violates #Site
	ErrCodeDuplicate = "E103" // Module listed twice
)

// LoadError is a configuration error, with its CUE position if known.
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

// Load reads the site configuration from the .cue files in dir.
// All schema violations are returned, not just the first.
func Load(dir string) (*Site, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config directory: %v", err)}}
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

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, convertCUEErrors(ErrCodeBuildFailed, err)
	}
	return compile(ctx, value)
}

// Parse compiles a site configuration from CUE source.
func Parse(src string) (*Site, []error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename("site.cue"))
	if err := value.Err(); err != nil {
		return nil, convertCUEErrors(ErrCodeBuildFailed, err)
	}
	return compile(ctx, value)
}

func compile(ctx *cue.Context, value cue.Value) (*Site, []error) {
	siteVal := value.LookupPath(cue.ParsePath("site"))
	if !siteVal.Exists() {
		return nil, []error{&LoadError{Code: ErrCodeNoSite, Message: "no site declared", Pos: value.Pos()}}
	}

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("schema: %v", err)}}
	}

	unified := schema.LookupPath(cue.ParsePath("#Site")).Unify(siteVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEErrors(ErrCodeSchema, err)
	}

	var site Site
	if err := unified.Decode(&site); err != nil {
		return nil, convertCUEErrors(ErrCodeSchema, err)
	}

	var errs []error
	seen := make(map[string]bool, len(site.Modules))
	for _, m := range site.Modules {
		if seen[m] {
			errs = append(errs, &LoadError{
				Code:    ErrCodeDuplicate,
				Message: fmt.Sprintf("module %q listed more than once", m),
				Pos:     siteVal.LookupPath(cue.ParsePath("modules")).Pos(),
			})
		}
		seen[m] = true
	}
	if len(errs) > 0 {
		return nil, errs
	}
	if site.Modules == nil {
		site.Modules = []string{}
	}
	return &site, nil
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

// convertCUEErrors splits a CUE error into LoadErrors with positions.
func convertCUEErrors(code string, err error) []error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return []error{&LoadError{Code: code, Message: err.Error()}}
	}
	out := make([]error, 0, len(list))
	for _, e := range list {
		le := &LoadError{Code: code, Message: e.Error()}
		if positions := cueerrors.Positions(e); len(positions) > 0 {
			le.Pos = positions[0]
		}
		out = append(out, le)
	}
	return out
}
