package localfs

import (
	"flag"

	"beap.dev/beap/storage"
	"beap.dev/beap/storage/registry"
)

var dirFlag *string

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "local filesystem store",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			dirFlag = fs.String("localfs-dir", "", "root directory for the localfs backend")
		},
		Open: func() (storage.CAS, func() error, error) {
			dir := ""
			if dirFlag != nil {
				dir = *dirFlag
			}
			cas, err := NewCAS(dir)
			if err != nil {
				return nil, nil, err
			}
			return cas, nil, nil
		},
	})
}
