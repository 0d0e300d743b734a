// Package testing switches binaries into test mode when blank imported by a
// test, so calling main does not dial PostgreSQL, Redis or S3.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("MERCADOLEVE_TEST_MODE", "1")
		// Never reach the real vision API from a test binary.
		if os.Getenv("OPENAI_BASE_URL") == "" {
			_ = os.Setenv("OPENAI_BASE_URL", "http://127.0.0.1:0")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
