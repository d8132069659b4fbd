package main

import (
	"github.com/djzelenak/espa-worker/history"
)

var getDbConnectionFunc history.ConnectionProvider = history.EnvConnectionProvider
