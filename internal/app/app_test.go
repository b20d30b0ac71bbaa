package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/herd-api/internal/config"
	"github.com/jwalitptl/herd-api/internal/email"
	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/pkg/logger"
	"github.com/jwalitptl/herd-api/pkg/metrics"
)

func TestOpenMemoryStores(t *testing.T) {
	stores, err := OpenStores(context.Background(), config.DatabaseConfig{Driver: "memory"}, metrics.NewNop(), logger.Nop())
	require.NoError(t, err)
	defer stores.Close()
	assert.Nil(t, stores.DB)

	cow := &model.Animal{TenantID: "owner-1", Tag: "GT-001"}
	require.NoError(t, stores.Animals.Create(context.Background(), cow))
	_, err = stores.Animals.Get(context.Background(), "owner-1", cow.ID)
	assert.NoError(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := OpenStores(context.Background(), config.DatabaseConfig{Driver: "sqlite"}, metrics.NewNop(), logger.Nop())
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestNewSender(t *testing.T) {
	assert.IsType(t, &email.LogSender{}, NewSender(config.EmailConfig{}, logger.Nop()))
	assert.IsType(t, &email.SMTPSender{}, NewSender(config.EmailConfig{
		Host: "smtp.example.test", Port: 587, FromAddress: "alerts@ranch.test",
	}, logger.Nop()))
}

func TestNewClockFallsBackToUTC(t *testing.T) {
	clk := NewClock(config.SchedulerConfig{TimeZone: "Mars/Olympus_Mons"}, logger.Nop())
	assert.True(t, clk.Degraded())
}
