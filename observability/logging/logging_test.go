package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("stakingd", "test", WithWriter(&buf))
	logger.Info("operation committed", "action", "stake")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "stakingd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "operation committed", line["message"])
	require.Equal(t, "stake", line["action"])
	require.Contains(t, line, "timestamp")
}

func TestSetupWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stakingd.log")
	var buf bytes.Buffer
	logger := Setup("stakingd", "", WithWriter(&buf), WithFile(path, 1, 1))
	logger.Warn("settlement failed")

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "settlement failed")
	require.NotContains(t, buf.String(), `"env"`)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("token", "secret").Value.String())
	require.Equal(t, "stake", MaskField("action", "stake").Value.String())
	require.Equal(t, " ", MaskField("token", " ").Value.String())
	require.Contains(t, RedactionAllowlist(), "caller")
	require.Equal(t, "100", MaskField("amount", "100").Value.String())
}

func TestMaskBearerKeepsSignatureTail(t *testing.T) {
	require.Equal(t, RedactedValue+"...abcdef", MaskBearer("bearer", "header.payload.sig-abcdef").Value.String())
	require.Equal(t, RedactedValue, MaskBearer("bearer", "short").Value.String())
	require.Equal(t, "", MaskBearer("bearer", "  ").Value.String())
}
