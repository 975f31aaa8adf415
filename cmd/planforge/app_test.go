package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"planforge/internal/config"
)

func TestApplyConfigSwapsJanitorRetention(t *testing.T) {
	a := &app{cfg: config.DefaultConfig()}
	assert.Equal(t, 24*time.Hour, a.jobRetention())

	updated := config.DefaultConfig()
	updated.Router.JobRetention = "1h"
	a.applyConfig(updated)

	assert.Equal(t, time.Hour, a.jobRetention())
}

func TestApplyConfigBadRetentionFallsBack(t *testing.T) {
	updated := config.DefaultConfig()
	updated.Router.JobRetention = "soon"
	a := &app{cfg: updated}

	assert.Equal(t, 24*time.Hour, a.jobRetention())
}
