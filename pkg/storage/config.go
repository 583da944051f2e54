package storage

import (
	"context"
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up the Store provider based on flags.
func Configured() Store {
	provider := lflag.String("storage-provider", "disk", "Storage provider to use (available: disk, firestore)")

	var p struct{ Store }

	d := configuredDisk()
	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "disk":
			if err := d.Validate(); err != nil {
				panic(fmt.Sprintf("disk validation failed: %v", err))
			}
			p.Store = d
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Store = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
