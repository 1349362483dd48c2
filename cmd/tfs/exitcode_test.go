package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jopamo/tfs/pkg/engine"
	"github.com/jopamo/tfs/pkg/errkind"
)

func TestExitCodeForClass(t *testing.T) {
	assert.Equal(t, 0, exitCodeForClass(engine.Success))
	assert.Equal(t, 1, exitCodeForClass(engine.OperationalFailure))
	assert.Equal(t, 2, exitCodeForClass(engine.PolicyFailure))
	assert.Equal(t, 3, exitCodeForClass(engine.TransactionalFailure))
}

func TestClassifyTopLevelMapsPolicyErrors(t *testing.T) {
	err := errkind.New(errkind.RootEscape, "escapes root")
	assert.Equal(t, engine.PolicyFailure, classifyTopLevel(err))
}

func TestClassifyTopLevelMapsOperationalErrors(t *testing.T) {
	err := errkind.New(errkind.IoError, "disk on fire")
	assert.Equal(t, engine.OperationalFailure, classifyTopLevel(err))
}

func TestClassifyTopLevelDefaultsUnknownToOperational(t *testing.T) {
	assert.Equal(t, engine.OperationalFailure, classifyTopLevel(assertErr{}))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
