package cmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ocm.software/open-component-model/streaming/cmd/wearablectl/cmd"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cmd.New()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	r := require.New(t)
	out, err := execute(t, "version", "-f", "gobuildinfo")
	r.NoError(err)
	r.Contains(out, "go\t")

	_, err = execute(t, "version", "-f", "ocmv1")
	r.ErrorContains(err, "must be one of json, gobuildinfo")
}

func TestRoot_Flags(t *testing.T) {
	r := require.New(t)

	_, err := execute(t, "--loglevel", "trace", "version")
	r.ErrorContains(err, "must be one of")

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
	r.ErrorContains(err, "could not retrieve configuration")

	path := filepath.Join(t.TempDir(), "config.yaml")
	r.NoError(os.WriteFile(path, []byte("type: streaming.config.ocm.software/v1\nbudget: -1\n"), 0o600))
	_, err = execute(t, "--config", path, "version")
	r.ErrorContains(err, "budget must be positive")
}

func TestResolve_RejectsFlags(t *testing.T) {
	r := require.New(t)

	_, err := execute(t, "resolve")
	r.Error(err)

	_, err = execute(t, "resolve", "--body-shape", "robot", "urn:decentraland:off-chain:base-avatars:eyes_00")
	r.ErrorContains(err, "must be one of male, female")

	_, err = execute(t, "resolve", "--source", "ipfs", "urn:decentraland:off-chain:base-avatars:eyes_00")
	r.ErrorContains(err, "unknown content source")

	_, err = execute(t, "resolve", "--source", "", "urn:decentraland:off-chain:base-avatars:eyes_00")
	r.ErrorContains(err, "at least one source is required")
}
