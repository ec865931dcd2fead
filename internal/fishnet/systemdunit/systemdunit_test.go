package systemdunit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderQuotesArgsAndFillsTemplate(t *testing.T) {
	out, err := Render(Params{
		User:       "fishnet",
		Group:      "fishnet",
		WorkingDir: "/opt/fishnet",
		Executable: "/usr/bin/fishnet",
		Args:       []string{"--conf", "/etc/fishnet.ini", "run"},
	}, false)
	require.NoError(t, err)
	assert.Contains(t, out, "[Unit]")
	assert.Contains(t, out, "User=fishnet")
	assert.Contains(t, out, "ExecStart=/usr/bin/fishnet --conf /etc/fishnet.ini run")
	assert.NotContains(t, out, "WARNING")
}

func TestRenderWarnsWhenRoot(t *testing.T) {
	out, err := Render(Params{Executable: "fishnet"}, true)
	require.NoError(t, err)
	assert.Contains(t, out, "WARNING")
}

func TestShellQuoteEscapesSpecialChars(t *testing.T) {
	assert.Equal(t, "plain", shellQuote("plain"))
	assert.Equal(t, `'has space'`, shellQuote("has space"))
	assert.Equal(t, `''`, shellQuote(""))
}
