// Package guard forces test mode for any test binary that imports it,
// so runtime side effects are skipped regardless of init ordering.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("AUTHZ_TEST_MODE") == "" {
			_ = os.Setenv("AUTHZ_TEST_MODE", "1")
		}
	})
}
