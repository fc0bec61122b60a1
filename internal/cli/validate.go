package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/domain"
)

// Validate checks every flow found at paths (files or directories) and prints
// a report to w. It returns false when any flow has errors. With activation
// set, only the errors that would block activation count.
func Validate(w io.Writer, paths []string, activation bool) (bool, error) {
	var loaded []*domain.Flow
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return false, err
		}
		if info.IsDir() {
			repo, err := file.LoadDir(p)
			if err != nil {
				return false, err
			}
			loaded = append(loaded, repo.Flows()...)
			continue
		}
		f, err := file.LoadFile(p)
		if err != nil {
			return false, err
		}
		loaded = append(loaded, f)
	}
	if len(loaded) == 0 {
		return false, fmt.Errorf("no flow definitions found in %v", paths)
	}

	ok := true
	for _, f := range loaded {
		check := validator.Validate
		if activation {
			check = validator.ValidateForActivation
		}
		res := check(f)
		if res.IsValid {
			fmt.Fprintf(w, "✅ %s: valid\n", f.ID)
		} else {
			ok = false
			fmt.Fprintf(w, "❌ %s: %d error(s)\n", f.ID, len(res.Errors))
		}
		for _, d := range res.Errors {
			fmt.Fprintf(w, "   error   %s\n", d)
		}
		for _, d := range res.Warnings {
			fmt.Fprintf(w, "   warning %s\n", d)
		}
	}
	return ok, nil
}
