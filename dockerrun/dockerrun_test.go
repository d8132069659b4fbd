package dockerrun

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djzelenak/espa-worker/command/commandtest"
)

func TestCheckEnv(t *testing.T) {
	t.Setenv(AuxDirEnv, "")
	t.Setenv(EspaStorageEnv, "/storage")
	assert.EqualError(t, CheckEnv(), "ENV must have AUX_DIR set")

	t.Setenv(AuxDirEnv, "/aux")
	t.Setenv(EspaStorageEnv, "")
	assert.EqualError(t, CheckEnv(), "ENV must have ESPA_STORAGE set")

	t.Setenv(EspaStorageEnv, "/storage")
	assert.NoError(t, CheckEnv())
}

func TestBuildCommand(t *testing.T) {
	t.Setenv(AuxDirEnv, "/aux")
	t.Setenv(EspaStorageEnv, "/storage")

	args, err := BuildCommand(`[ {"orderid": "o", "scene": "plot"} ]`, "", "")

	require.NoError(t, err)
	assert.Equal(t, []string{
		"docker", "run", "-it", "--rm",
		"--mount", "type=bind,source=/aux,destination=/usr/local/auxiliaries,readonly",
		"--mount", "type=bind,source=/storage,destination=/espa-storage/orders",
		"usgseros/espa-worker:latest",
		`[{"orderid":"o","scene":"plot"}]`,
	}, args)
}

func TestBuildCommand_Image(t *testing.T) {
	args, err := BuildCommand(`{}`, "local/worker", "dev")
	require.NoError(t, err)
	assert.Equal(t, "local/worker:dev", args[len(args)-2])

	_, err = BuildCommand(`{not json`, "", "")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	t.Setenv(AuxDirEnv, "/aux")
	t.Setenv(EspaStorageEnv, "/storage")
	runner := &commandtest.Runner{}

	_, err := Run(context.Background(), runner, `{"orderid": "o"}`, "", "")

	require.NoError(t, err)
	require.Len(t, runner.Calls(), 1)
	assert.Equal(t, "docker", runner.Calls()[0].Name)

	t.Setenv(AuxDirEnv, "")
	_, err = Run(context.Background(), runner, `{}`, "", "")
	assert.Error(t, err)
	assert.Len(t, runner.Calls(), 1)
}
