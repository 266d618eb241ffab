// Package testing prepares the process environment for electcore tests.
// Blank-import it from any test that builds config or touches the binaries:
// it enables app test mode and supplies a JWT signing secret long enough to
// pass config validation.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

const (
	testModeEnv = "ELECTCORE_TEST_MODE"
	secretEnv   = "JWT_SECRET"

	// fixtureSecret signs tokens in tests only; it is 34 bytes.
	fixtureSecret = "electcore-test-secret-0123456789ab"
)

var prepareOnce sync.Once

func prepareEnv() {
	prepareOnce.Do(func() {
		_ = os.Setenv(testModeEnv, "1")
		if os.Getenv(secretEnv) == "" {
			_ = os.Setenv(secretEnv, fixtureSecret)
		}
	})
}

func init() {
	prepareEnv()
}

// TestMain lets packages adopt this setup with `func TestMain(m) { testing.TestMain(m) }`.
func TestMain(m *stdtesting.M) {
	prepareEnv()
	os.Exit(m.Run())
}
