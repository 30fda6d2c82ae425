// Package version reports the pkg2sqfs release and build metadata.
//
// Values injected at link time win:
//
//	go build -ldflags "-X github.com/dendrascience/pkg2sqfs/version.Version=v1.0.0 \
//	  -X github.com/dendrascience/pkg2sqfs/version.Commit=abc1234 \
//	  -X github.com/dendrascience/pkg2sqfs/version.Date=2024-01-01T00:00:00Z"
//
// Otherwise the module version and VCS settings recorded by the Go toolchain
// are used, falling back to "development" and "unknown".
package version
