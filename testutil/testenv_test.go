package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv_EnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nADRIVE_GO_TESTUTIL_A=\"from-file\"\nADRIVE_GO_TESTUTIL_B=file\nnot a pair\n"), 0o600))

	t.Setenv("ADRIVE_GO_TESTUTIL_A", "")
	t.Setenv("ADRIVE_GO_TESTUTIL_B", "from-env")

	LoadDotEnv(path)

	assert.Equal(t, "from-file", os.Getenv("ADRIVE_GO_TESTUTIL_A"))
	assert.Equal(t, "from-env", os.Getenv("ADRIVE_GO_TESTUTIL_B"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	LoadDotEnv(filepath.Join(t.TempDir(), "nope"))
}

func TestFindModuleRoot(t *testing.T) {
	root := FindModuleRoot("")
	require.NotEmpty(t, root)
	assert.FileExists(t, filepath.Join(root, "go.mod"))
}

func TestValidateAllowlist_Listed(t *testing.T) {
	t.Setenv(AllowlistEnv, "111, 222")
	t.Setenv("ADRIVE_GO_TESTUTIL_DRIVE", "222")

	assert.Equal(t, "222", ValidateAllowlist("ADRIVE_GO_TESTUTIL_DRIVE"))
}
