package config

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hookTarget struct {
	Level   log.Level
	Timeout time.Duration
	Addrs   []string
}

func TestCustomHooks_DecodeLevelDurationAndSlice(t *testing.T) {
	v := viper.New()
	v.Set("level", "warn")
	v.Set("timeout", "90s")
	v.Set("addrs", "a:6379,b:6379")

	var target hookTarget
	require.NoError(t, v.Unmarshal(&target, CustomHooks...))

	assert.Equal(t, log.WarnLevel, target.Level)
	assert.Equal(t, 90*time.Second, target.Timeout)
	assert.Equal(t, []string{"a:6379", "b:6379"}, target.Addrs)
}

func TestValidate_RedisConfig(t *testing.T) {
	assert.Error(t, Validate(RedisConfig{}))
	assert.NoError(t, Validate(RedisConfig{Addrs: []string{"localhost:6379"}}))
	assert.Error(t, Validate(RedisConfig{Addrs: []string{"localhost:6379"}, DB: 17}))
}

func TestAsUniversalOptions(t *testing.T) {
	rc := RedisConfig{Addrs: []string{"x:1"}, DB: 3, PoolSize: 20, MinRetryBackoff: time.Millisecond, MaxRetryBackoff: time.Second}
	opts := rc.AsUniversalOptions()
	assert.Equal(t, []string{"x:1"}, opts.Addrs)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, time.Millisecond, opts.MinRetryBackoff)
	assert.Equal(t, time.Second, opts.MaxRetryBackoff)
}
