package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeArgs(t *testing.T) {
	t.Setenv("AWS_LAMBDA_RUNTIME_API", "")
	assert.Empty(t, runtimeArgs(nil))
	assert.Equal(t, []string{"--help"}, runtimeArgs([]string{"--help"}))

	t.Setenv("AWS_LAMBDA_RUNTIME_API", "127.0.0.1:9001")
	assert.Equal(t, []string{"lambda"}, runtimeArgs(nil))
	assert.Equal(t, []string{"lambda"}, runtimeArgs([]string{}))
	assert.Equal(t, []string{"poll"}, runtimeArgs([]string{"poll"}))
}
