// Copyright 2018, RadiantBlue Technologies, Inc.
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

package main

import (
	cli "gopkg.in/urfave/cli.v1"

	"github.com/djzelenak/espa-worker/dockerrun"
)

var configFlag = cli.StringFlag{
	Name:   "config, c",
	Usage:  "TOML file layered over the built-in processing configuration",
	EnvVar: "ESPA_CONFIG_FILE",
}

var commands = cli.Commands{
	cli.Command{
		Name:      "process",
		Aliases:   []string{"p"},
		Usage:     "Process the product requests in the given API response",
		ArgsUsage: "<json | ->",
		Flags:     []cli.Flag{configFlag},
		Action:    processAction,
	},
	cli.Command{
		Name:   "schedule",
		Usage:  "Poll the production API for work and serve the worker status",
		Flags:  []cli.Flag{configFlag},
		Action: scheduleAction,
	},
	cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Launch the status webserver without processing anything",
		Action:  serveAction,
	},
	cli.Command{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "Print the version number of the worker CLI",
		Action:  versionAction,
	},
	cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Update the job history database schema",
		Action:  migrateDatabaseAction,
	},
	cli.Command{
		Name:      "docker-run",
		Usage:     "Run the worker image for one API response with the auxiliary data mounted",
		ArgsUsage: "[json]",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "image", Value: dockerrun.DefaultImage, Usage: "worker image"},
			cli.StringFlag{Name: "tag", Value: dockerrun.DefaultTag, Usage: "worker image tag"},
			cli.StringFlag{Name: "data", Usage: "API response JSON, instead of the first argument"},
		},
		Action: dockerRunAction,
	},
}

func createCliApp() (app *cli.App) {
	app = cli.NewApp()
	app.Name = "espa-worker"
	app.Usage = "Process ESPA product requests"
	app.Version = version
	app.Commands = commands
	return
}
