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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mlos-shm/mlos-shm/mlosctx"
)

var (
	namePrefix  string
	channelSize uint64
	dictSlots   int
	cleanup     bool
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "mlos-debug",
	Short: "Inspect and exercise an mlos-shm region set from the command line",
	Long: `mlos-debug creates or attaches to a named mlos-shm region set and runs
diagnostic commands against it: dumping channel/dictionary state, sending
synthetic messages, and probing backpressure behavior. It is test tooling,
not a product surface.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&namePrefix, "name-prefix", "Mlos_Debug", "shared-memory region name prefix")
	rootCmd.PersistentFlags().Uint64Var(&channelSize, "channel-size", 64*1024, "control/feedback channel buffer size in bytes")
	rootCmd.PersistentFlags().IntVar(&dictSlots, "dict-slots", 0, "shared-config dictionary slot count (0 selects the default)")
	rootCmd.PersistentFlags().BoolVar(&cleanup, "cleanup", true, "unlink the region set on exit if this was the last attached process")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable info-level logging of region/channel lifecycle events")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newDebugContext bootstraps (or attaches to) the named region set the
// persistent flags describe.
func newDebugContext() (*mlosctx.MlosContext, error) {
	log := zap.NewNop()
	if verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			log = l
		}
	}
	return mlosctx.NewInterProcess(
		mlosctx.WithNamePrefix(namePrefix),
		mlosctx.WithChannelSize(channelSize),
		mlosctx.WithDictionarySlots(dictSlots),
		mlosctx.WithLogger(log),
	)
}
