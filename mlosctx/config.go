/*
 *
 * Copyright 2026 the mlos-shm authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package mlosctx

import (
	"go.uber.org/zap"

	"github.com/mlos-shm/mlos-shm/internal/shm"
)

// Config holds the tunables a constructor needs: region name prefix, sizes,
// dictionary slot counts, and the logger every lifecycle event is reported
// through. Built via functional options: a small typed config passed to
// constructors rather than a generic settings map.
type Config struct {
	NamePrefix       string
	GlobalRegionSize uint64
	ChannelSize      uint64
	SharedConfigSize uint64
	DictionarySlots  int
	FdExchangeDir    string
	Logger           *zap.Logger
}

// Option configures a Config.
type Option func(*Config)

// WithNamePrefix overrides the region name prefix (default "Host_Mlos";
// "Test_Mlos" for the in-process test constructor).
func WithNamePrefix(prefix string) Option {
	return func(c *Config) { c.NamePrefix = prefix }
}

// WithGlobalRegionSize overrides the global region's size in bytes.
func WithGlobalRegionSize(size uint64) Option {
	return func(c *Config) { c.GlobalRegionSize = size }
}

// WithChannelSize overrides each channel buffer's size in bytes.
func WithChannelSize(size uint64) Option {
	return func(c *Config) { c.ChannelSize = size }
}

// WithSharedConfigSize overrides the shared-config region's size in bytes.
func WithSharedConfigSize(size uint64) Option {
	return func(c *Config) { c.SharedConfigSize = size }
}

// WithDictionarySlots overrides the global and shared-config dictionaries'
// slot count (default 2048).
func WithDictionarySlots(slots int) Option {
	return func(c *Config) { c.DictionarySlots = slots }
}

// WithFdExchangeDir overrides the FileWatcher directory (default
// fdexchange.WatchDir).
func WithFdExchangeDir(dir string) Option {
	return func(c *Config) { c.FdExchangeDir = dir }
}

// WithLogger sets the structured logger; a nil logger means zap.NewNop().
func WithLogger(log *zap.Logger) Option {
	return func(c *Config) { c.Logger = log }
}

func defaultConfig() Config {
	return Config{
		NamePrefix:       "Host_Mlos",
		GlobalRegionSize: shm.DefaultRegionSize,
		ChannelSize:      shm.DefaultRegionSize,
		SharedConfigSize: shm.DefaultRegionSize,
		DictionarySlots:  0, // 0 selects shm's own default (2048)
		Logger:           zap.NewNop(),
	}
}

func buildConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}
