package main

import (
	"fmt"
	"os"

	// Bucket schemes for blob distribution and s3:// or gs:// download URLs
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/djzelenak/espa-worker/logging"
	"github.com/djzelenak/espa-worker/util"
)

func main() {
	util.SetLogger(logging.New(os.Stderr, "espa-worker"))
	util.LogAudit(&(util.BasicLogContext{}), util.LogAuditInput{Actor: "main()", Action: "startup", Actee: "self", Message: "Application Startup", Severity: util.INFO})
	err := createCliApp().Run(os.Args)
	if err != nil {
		util.LogAlert(&(util.BasicLogContext{}), fmt.Sprintf("Error executing CLI app: %v", err))
		os.Exit(1)
	}
}
