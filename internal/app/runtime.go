package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// TestModeEnv, when "1", makes cmd/electcore and cmd/worker return before
// dialing Postgres or Redis. Test binaries set it by blank-importing
// github.com/electcore/electcore/testing.
const TestModeEnv = "ELECTCORE_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	testMode.Store(os.Getenv(TestModeEnv) == "1")
}

// InTestMode reports whether the binaries must skip connecting to their stores.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads TestModeEnv.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}
