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
	"time"

	"github.com/spf13/cobra"
)

var (
	backpressureChannel   string
	backpressureChunk     int
	backpressureMaxChunks int
	backpressureTimeout   time.Duration
)

func init() {
	cmd := newBackpressureCmd()
	cmd.Flags().StringVar(&backpressureChannel, "channel", "control", `channel to write to: "control" or "feedback"`)
	cmd.Flags().IntVar(&backpressureChunk, "chunk-size", 1000, "bytes written per chunk")
	cmd.Flags().IntVar(&backpressureMaxChunks, "max-chunks", 100, "stop after this many successful chunks even if the channel never fills")
	cmd.Flags().DurationVar(&backpressureTimeout, "timeout", 2*time.Second, "how long to wait for a chunk before reporting the channel as full")
	rootCmd.AddCommand(cmd)
}

func newBackpressureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backpressure",
		Short: "Write fixed-size chunks until the channel reports no room",
		Long: `backpressure writes --chunk-size bytes at a time, without ever
reading them back, until the channel fills and a write stops returning
within --timeout, or --max-chunks is reached. This is a gradual-fill probe
to observe when a ring buffer starts rejecting writes; the channel's own
Send has no timeout, so this command supplies one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := newDebugContext()
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer ctx.Close(cleanup)

			sendFn, err := resolveSendFn(ctx, backpressureChannel)
			if err != nil {
				return err
			}

			fmt.Printf("=== Backpressure Test (%s channel) ===\n", backpressureChannel)
			totalWritten := 0
			for i := 0; i < backpressureMaxChunks; i++ {
				payload := make([]byte, backpressureChunk)
				for j := range payload {
					payload[j] = byte((i + j) % 256)
				}

				if err := sendWithTimeout(sendFn, debugCodegenTypeIndex, 0, payload, backpressureTimeout); err != nil {
					fmt.Printf("failed after %d bytes written (%d chunks): %v\n", totalWritten, i, err)
					return nil
				}
				totalWritten += backpressureChunk
				fmt.Printf("written %d bytes (%d chunks)\n", totalWritten, i+1)
			}
			fmt.Printf("reached --max-chunks (%d) without backpressure\n", backpressureMaxChunks)
			return nil
		},
	}
}
