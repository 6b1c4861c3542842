package app

import (
	"os"
	"strconv"
	"strings"
)

const testModeEnv = "BACKOFFICE_TEST_MODE"

// Mode tells binaries whether to start their dependencies.
type Mode string

const (
	ModeServe Mode = "serve"
	ModeTest  Mode = "test"
)

// CurrentMode reads BACKOFFICE_TEST_MODE on every call. Any value strconv
// accepts as true selects ModeTest.
func CurrentMode() Mode {
	on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(testModeEnv)))
	if err == nil && on {
		return ModeTest
	}
	return ModeServe
}

// InTestMode reports whether binaries should return before touching Postgres,
// Redis or the network.
func InTestMode() bool {
	return CurrentMode() == ModeTest
}
