package config

import (
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"
)

type quantityHolder struct {
	Cpu    resource.Quantity
	Memory resource.Quantity
}

func TestQuantityDecodeHook(t *testing.T) {
	var holder quantityHolder
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: QuantityDecodeHook(),
		Result:     &holder,
	})
	require.NoError(t, err)

	err = decoder.Decode(map[string]interface{}{"cpu": "250m", "memory": 256})
	require.NoError(t, err)

	assert.Equal(t, resource.MustParse("250m"), holder.Cpu)
	assert.Equal(t, int64(256), holder.Memory.Value())
}

func TestQuantityDecodeHook_InvalidQuantity(t *testing.T) {
	var holder quantityHolder
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: QuantityDecodeHook(),
		Result:     &holder,
	})
	require.NoError(t, err)

	assert.Error(t, decoder.Decode(map[string]interface{}{"cpu": "a lot"}))
}

func TestValidate_Redis(t *testing.T) {
	assert.NoError(t, Validate(RedisConfig{Addrs: []string{"localhost:6379"}, PoolSize: 10}))
	assert.Error(t, Validate(RedisConfig{PoolSize: 10}))
	assert.Error(t, Validate(RedisConfig{Addrs: []string{"localhost:6379"}, PoolSize: 10, DB: 17}))
}

func TestAsUniversalOptions(t *testing.T) {
	rc := RedisConfig{
		Addrs:           []string{"a:1", "b:2"},
		MinRetryBackoff: time.Millisecond,
		MaxRetryBackoff: time.Second,
		PoolSize:        3,
	}
	opts := rc.AsUniversalOptions()
	assert.Equal(t, rc.Addrs, opts.Addrs)
	assert.Equal(t, time.Millisecond, opts.MinRetryBackoff)
	assert.Equal(t, time.Second, opts.MaxRetryBackoff)
	assert.Equal(t, 3, opts.PoolSize)
}
