package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelpListsEveryDirectiveToken(t *testing.T) {
	out := Help()
	for _, d := range Directives {
		assert.True(t, strings.Contains(out, d.Token), "missing %s in help output", d.Token)
	}
}
