// Copyright 2016, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables
const (
	PORT                       = "PORT"
	DATABASE_URL               = "DATABASE_URL"
	ESPA_CONFIG_FILE           = "ESPA_CONFIG_FILE"
	ESPA_SCHEDULE_FREQUENCY    = "ESPA_SCHEDULE_FREQUENCY"
	ESPA_DISPOSITION_FREQUENCY = "ESPA_DISPOSITION_FREQUENCY"
	ESPA_DEVELOPER_SLEEP_MODE  = "ESPA_DEVELOPER_SLEEP_MODE"
)

const (
	defaultPort                = "8080"
	defaultScheduleFrequency   = 2 * time.Minute
	defaultDispositionInterval = 7 * time.Minute
	minimumFrequency           = 10 * time.Second
)

// GetPortStr returns the listen address built from the PORT environment variable
func GetPortStr() string {
	if port, ok := os.LookupEnv(PORT); ok && port != "" {
		return ":" + port
	}
	return ":" + defaultPort
}

// GetDatabaseURL returns a string for the DATABASE_URL environment variable
func GetDatabaseURL() string {
	dbURL, ok := os.LookupEnv(DATABASE_URL)
	if !ok {
		LogInfo(&BasicLogContext{}, "No DATABASE_URL in the environment. Job history will not be recorded.")
	}
	return dbURL
}

// GetConfigFile returns the optional processing configuration file path
func GetConfigFile() string {
	return os.Getenv(ESPA_CONFIG_FILE)
}

// GetScheduleFrequency returns how often the scheduler asks the API for work
func GetScheduleFrequency() time.Duration {
	return durationFromEnv(ESPA_SCHEDULE_FREQUENCY, defaultScheduleFrequency)
}

// GetDispositionFrequency returns how often the scheduler asks the API to handle orders
func GetDispositionFrequency() time.Duration {
	return durationFromEnv(ESPA_DISPOSITION_FREQUENCY, defaultDispositionInterval)
}

// IsDeveloperSleepMode returns true if ESPA_DEVELOPER_SLEEP_MODE is true
func IsDeveloperSleepMode() bool {
	value, ok := os.LookupEnv(ESPA_DEVELOPER_SLEEP_MODE)
	if !ok {
		return false
	}
	mode, err := strconv.ParseBool(value)
	if err != nil {
		LogAlert(&BasicLogContext{}, fmt.Sprintf("Could not parse %s value `%s`; developer sleep mode is off", ESPA_DEVELOPER_SLEEP_MODE, value))
		return false
	}
	return mode
}

func durationFromEnv(name string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	duration, err := time.ParseDuration(value)
	if err != nil || duration < minimumFrequency {
		LogAlert(&BasicLogContext{}, fmt.Sprintf("Specified %s of `%s` is unusable. Setting to default %v.", name, value, fallback))
		return fallback
	}
	return duration
}
