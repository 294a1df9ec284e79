package cli

import (
	"fmt"
	"os"

	"github.com/veritas-kanban/core/internal/config"
)

// loadAndValidateConfig loads a config file and validates it, printing
// errors to stderr, matching the teacher's loadAndValidateConfig shape.
func loadAndValidateConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return nil, err
	}

	errs := config.Validate(cfg)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		}
		return nil, fmt.Errorf("%d validation error(s)", len(errs))
	}

	return cfg, nil
}
