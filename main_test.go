package main

import (
	"bytes"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func executeCommand(args ...string) (string, error) {
	defer log.SetLevel(log.WarnLevel)

	out := new(bytes.Buffer)
	cmd := newRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()

	return out.String(), err
}

func TestWindowCommand(t *testing.T) {
	out, err := executeCommand("window", "--schedule", "@daily", "--start", "2024-06-02T00:00:05Z")
	assert.NoError(t, err)
	assert.Equal(t, "2024-06-01T00:00:00Z\n", out)

	out, err = executeCommand("window", "--schedule", "@daily",
		"--start", "2024-06-03T01:00:00Z", "--scheduled-at", "2024-06-02T00:00:00Z")
	assert.NoError(t, err)
	assert.Equal(t, "2024-05-31T00:00:00Z\n", out)

	_, err = executeCommand("window", "--schedule", "@yearly")
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	out, err := executeCommand("validate", "--configfile", writeConfig(t, sampleConfig), "--log-level", "error")
	assert.NoError(t, err)
	assert.Contains(t, out, "Connector partnerone (c-1234567890abcdef0), schedule @daily:")

	_, err = executeCommand("validate")
	assert.ErrorContains(t, err, "--configfile")

	_, err = executeCommand("validate", "--configfile", writeConfig(t, sampleConfig), "--log-level", "chatty")
	assert.Error(t, err)
}
