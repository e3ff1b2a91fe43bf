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
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlos-shm/mlos-shm/mlosctx"
)

// debugCodegenTypeIndex is the dispatch-table slot synthetic debug
// messages use; real settings assemblies start well past the core's
// reserved 1..3 range, so this collides with nothing in practice.
const debugCodegenTypeIndex uint32 = 1000

var (
	sendChannel string
	sendSizes   string
	sendTimeout time.Duration
)

func init() {
	cmd := newSendCmd()
	cmd.Flags().StringVar(&sendChannel, "channel", "control", `channel to write to: "control" or "feedback"`)
	cmd.Flags().StringVar(&sendSizes, "sizes", "10,20,30,40,50,100,200,500,1000,5000,10000,32768,65000", "comma-separated payload sizes in bytes to try, in order")
	cmd.Flags().DurationVar(&sendTimeout, "timeout", 2*time.Second, "how long to wait for a write before reporting it as stalled")
	rootCmd.AddCommand(cmd)
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send",
		Short: "Write a series of synthetic frames and report which sizes fit",
		Long: `send writes one synthetic frame per size listed in --sizes, without
ever reading them back: a single-write probe against a raw ring before
worrying about backpressure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sizes, err := parseSizes(sendSizes)
			if err != nil {
				return err
			}

			ctx, err := newDebugContext()
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer ctx.Close(cleanup)

			sendFn, err := resolveSendFn(ctx, sendChannel)
			if err != nil {
				return err
			}

			fmt.Printf("=== Single Write Tests (%s channel) ===\n", sendChannel)
			for _, size := range sizes {
				payload := make([]byte, size)
				for i := range payload {
					payload[i] = byte(i % 256)
				}
				if err := sendWithTimeout(sendFn, debugCodegenTypeIndex, 0, payload, sendTimeout); err != nil {
					fmt.Printf("size %d bytes: FAIL (%v)\n", size, err)
					continue
				}
				fmt.Printf("size %d bytes: OK\n", size)
			}
			return nil
		},
	}
}

type sendFunc func(codegenTypeIdx uint32, codegenTypeHash uint64, payload []byte) error

func resolveSendFn(ctx *mlosctx.MlosContext, channel string) (sendFunc, error) {
	switch channel {
	case "control":
		return ctx.SendControl, nil
	case "feedback":
		return ctx.SendFeedback, nil
	default:
		return nil, fmt.Errorf("unknown channel %q, want \"control\" or \"feedback\"", channel)
	}
}

func parseSizes(csv string) ([]int, error) {
	fields := strings.Split(csv, ",")
	sizes := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid size %q: %w", f, err)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}
