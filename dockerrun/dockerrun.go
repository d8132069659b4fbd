// Package dockerrun starts the worker image for a single API response with
// the auxiliary data and order storage mounted.
package dockerrun

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/djzelenak/espa-worker/command"
)

// Environment variables naming the host directories to mount
const (
	AuxDirEnv      = "AUX_DIR"
	EspaStorageEnv = "ESPA_STORAGE"
)

// Image defaults
const (
	DefaultImage = "usgseros/espa-worker"
	DefaultTag   = "latest"
)

// Mount points inside the container
const (
	AuxiliaryMount = "/usr/local/auxiliaries"
	StorageMount   = "/espa-storage/orders"
)

// CheckEnv makes sure both host directories are set
func CheckEnv() error {
	for _, name := range []string{AuxDirEnv, EspaStorageEnv} {
		if os.Getenv(name) == "" {
			return errors.Errorf("ENV must have %s set", name)
		}
	}
	return nil
}

// BuildCommand returns the docker argv for data, which must be the JSON
// handed out by the production API. The JSON is compacted into a single
// argument.
func BuildCommand(data, image, tag string) ([]string, error) {
	if !gjson.Valid(data) {
		return nil, errors.New("Product request data is not valid JSON")
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(data)); err != nil {
		return nil, errors.WithStack(err)
	}
	if image == "" {
		image = DefaultImage
	}
	if tag == "" {
		tag = DefaultTag
	}

	return []string{
		"docker", "run",
		"-it",
		"--rm",
		"--mount", "type=bind,source=" + os.Getenv(AuxDirEnv) + ",destination=" + AuxiliaryMount + ",readonly",
		"--mount", "type=bind,source=" + os.Getenv(EspaStorageEnv) + ",destination=" + StorageMount,
		image + ":" + tag,
		compact.String(),
	}, nil
}

// Run checks the environment and runs the container to completion
func Run(ctx context.Context, runner command.Runner, data, image, tag string) (string, error) {
	if err := CheckEnv(); err != nil {
		return "", err
	}
	args, err := BuildCommand(data, image, tag)
	if err != nil {
		return "", err
	}
	return runner.Run(ctx, "", args[0], args[1:]...)
}
