package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// unset lists the fields left at their zero value, except those tagged as nullable.
func unset(v reflect.Value, path string) (fields []string) {
	if v.Kind() != reflect.Struct {
		if v.IsZero() {
			return []string{path}
		}

		return nil
	}

	for i := range v.NumField() {
		field := v.Type().Field(i)
		if field.Tag.Get("test") == "nullable" {
			continue
		}

		fields = append(fields, unset(v.Field(i), path+"."+field.Name)...)
	}

	return fields
}

func TestDefault(t *testing.T) {
	t.Run("no unset fields", func(t *testing.T) {
		require.Empty(t, unset(reflect.ValueOf(*Default()), "Config"))
	})

	t.Run("limits", func(t *testing.T) {
		cfg := Default()
		require.Equal(t, 500, cfg.Headers.MaxCount)
		require.Equal(t, 16384, cfg.Headers.MaxSize)
		require.Empty(t, cfg.Headers.Default)
		require.Equal(t, 1024, cfg.Chunked.MaxSizeLine)
		require.Equal(t, int64(100000), cfg.Body.SpoolThreshold)
		require.Empty(t, cfg.Body.SpoolDir)
	})

	t.Run("network", func(t *testing.T) {
		cfg := Default().NET
		require.Equal(t, 16384, cfg.MaxLineLength)
		require.Equal(t, 16*1024, cfg.EagerReadWatermark)
		require.Equal(t, 90*time.Second, cfg.IdleTimeout)
		require.Equal(t, 15*time.Second, cfg.AbortTimeout)
		require.Equal(t, 64*1024, cfg.WriteBuffer.High)
		require.Equal(t, 16*1024, cfg.WriteBuffer.Low)
		require.Less(t, cfg.WriteBuffer.Low, cfg.WriteBuffer.High)
	})

	t.Run("independent copies", func(t *testing.T) {
		a, b := Default(), Default()
		a.Headers.Default["Server"] = "strand"
		require.Empty(t, b.Headers.Default)
	})
}
