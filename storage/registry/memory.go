package registry

import (
	"flag"

	"beap.dev/beap/storage"
)

// The memory backend ships with the registry itself: it has no configuration
// and is useful for daemons running without persistence.
func init() {
	MustRegister(Backend{
		Name:        "memory",
		Description: "in-process memory store (no persistence)",
		Usage:       UsageCLI | UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
		},
		Open: func() (storage.CAS, func() error, error) {
			return storage.NewMemoryCAS(), nil, nil
		},
	})
}
