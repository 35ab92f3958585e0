package app

import (
	"os"
	"strconv"
)

const testModeEnv = "CONSOLE_TEST_MODE"

// InTestMode reports whether CONSOLE_TEST_MODE asks the binaries to skip
// connecting to Redis, Postgres and the API.
func InTestMode() bool {
	enabled, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && enabled
}
