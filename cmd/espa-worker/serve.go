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
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/djzelenak/espa-worker/history"
	"github.com/djzelenak/espa-worker/util"
	"github.com/djzelenak/espa-worker/worker"
)

const defaultRecentJobs = 50

// routerOptions are the optional parts of the status server
type routerOptions struct {
	scheduler   *worker.Scheduler
	messageChan chan<- string
	history     *history.Store
}

func createRouter(ctx util.LogContext, opts routerOptions) (*mux.Router, error) {
	if opts.scheduler != nil && opts.messageChan == nil {
		return nil, errors.New("A scheduler needs a message channel")
	}

	router := mux.NewRouter()
	router.HandleFunc("/", func(writer http.ResponseWriter, request *http.Request) {
		writer.Write([]byte("OK"))
	})
	router.HandleFunc("/status", func(resp http.ResponseWriter, req *http.Request) {
		handleSchedulerStatus(opts.scheduler, resp, req)
	})
	if opts.scheduler != nil {
		router.HandleFunc("/start", func(resp http.ResponseWriter, req *http.Request) {
			handleForceStartJob(opts.scheduler, opts.messageChan, resp, req)
		})
		router.HandleFunc("/cancel", func(resp http.ResponseWriter, req *http.Request) {
			handleCancel(opts.scheduler, opts.messageChan, resp, req)
		})
	}
	router.HandleFunc("/jobs", func(resp http.ResponseWriter, req *http.Request) {
		handleRecentJobs(ctx, opts.history, resp, req)
	})
	router.HandleFunc("/jobs/{orderid}/{productid}", func(resp http.ResponseWriter, req *http.Request) {
		handleJob(ctx, opts.history, resp, req)
	})
	router.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))

	return router, nil
}

//handleSchedulerStatus requests the status from the scheduler and writes it out.
func handleSchedulerStatus(s *worker.Scheduler, writer http.ResponseWriter, req *http.Request) {
	if s == nil {
		fmt.Fprintln(writer, "Scheduler is not running.")
		return
	}
	fmt.Fprintln(writer, s.GetStatus())
}

//handleForceStartJob sends a "begin" message to the scheduler and returns the new status to the user.
func handleForceStartJob(s *worker.Scheduler, messageChan chan<- string, writer http.ResponseWriter, req *http.Request) {
	select {
	case messageChan <- worker.BeginJobMessage:
		fmt.Fprintln(writer, "Begin job request submitted.")
	default:
		fmt.Fprintln(writer, "Error submitting request.")
	}
	fmt.Fprintln(writer, s.GetStatus())
}

//handleCancel sends an "abort" message to the scheduler and returns the new status to the user.
func handleCancel(s *worker.Scheduler, messageChan chan<- string, writer http.ResponseWriter, req *http.Request) {
	select {
	case messageChan <- worker.AbortJobMessage:
		fmt.Fprintln(writer, "Cancel request submitted.")
	default:
		fmt.Fprintln(writer, "Error submitting cancel request.")
	}
	fmt.Fprintln(writer, s.GetStatus())
}

func writeJSON(ctx util.LogContext, writer http.ResponseWriter, req *http.Request, obj interface{}) {
	data, err := json.Marshal(obj)
	if err != nil {
		util.HTTPError(req, writer, ctx, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.Write(data)
}

func handleRecentJobs(ctx util.LogContext, store *history.Store, writer http.ResponseWriter, req *http.Request) {
	if store == nil {
		util.HTTPError(req, writer, ctx, "Job history is not enabled", http.StatusServiceUnavailable)
		return
	}
	limit := defaultRecentJobs
	if raw := req.URL.Query().Get("limit"); raw != "" {
		value, err := cast.ToIntE(raw)
		if err != nil || value <= 0 {
			util.HTTPError(req, writer, ctx, fmt.Sprintf("Invalid limit [%s]", raw), http.StatusBadRequest)
			return
		}
		limit = value
	}

	jobs, err := store.Recent(req.Context(), limit)
	if err != nil {
		util.HTTPError(req, writer, ctx, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(ctx, writer, req, jobs)
}

func handleJob(ctx util.LogContext, store *history.Store, writer http.ResponseWriter, req *http.Request) {
	if store == nil {
		util.HTTPError(req, writer, ctx, "Job history is not enabled", http.StatusServiceUnavailable)
		return
	}
	vars := mux.Vars(req)
	job, err := store.Get(req.Context(), vars["orderid"], vars["productid"])
	switch {
	case errors.Is(err, history.ErrNotFound):
		util.HTTPError(req, writer, ctx, fmt.Sprintf("No job found for %s/%s", vars["orderid"], vars["productid"]), http.StatusNotFound)
		return
	case err != nil:
		util.HTTPError(req, writer, ctx, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(ctx, writer, req, job)
}

// serveAction serves job history and metrics without processing anything
func serveAction(*cli.Context) {
	logContext := &(util.BasicLogContext{})

	portStr := util.GetPortStr()

	opts := routerOptions{}
	if db, err := getDbConnectionFunc(logContext); err == nil {
		defer db.Close()
		opts.history = history.NewStore(db)
	} else if !errors.Is(err, history.ErrNoDatabase) {
		util.LogSimpleErr(logContext, "Failed to open the job history: ", err)
	}

	if router, err := createRouter(logContext, opts); err == nil {
		launchServerFunc(portStr, router)
	} else {
		util.LogSimpleErr(logContext, "Failed to create router: ", err)
	}
}

var launchServerFunc = launchServer

func launchServer(portStr string, router *mux.Router) {
	server := http.Server{
		Addr:    portStr,
		Handler: router,
	}

	log.Fatal(server.ListenAndServe())
}
