package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFinsightCtlCommand_Subcommands(t *testing.T) {
	cmd := NewFinsightCtlCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"analyze", "status", "keys"}, names)

	keys, _, err := cmd.Find([]string{"keys", "revoke"})
	assert.NoError(t, err)
	assert.Equal(t, "revoke", keys.Name())
}
