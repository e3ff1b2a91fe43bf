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

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDictionaryCmd())
}

func newDictionaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dictionary",
		Short: "Report shared-config and global dictionary slot occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := newDebugContext()
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer ctx.Close(cleanup)

			regions := ctx.Regions()
			sharedConfigSlots := regions.SharedConfig.SlotCount()
			sharedConfigEmpty := regions.SharedConfig.CountEmptySlots()
			globalSlots := regions.Global.Dictionary.SlotCount()
			globalEmpty := regions.Global.Dictionary.CountEmptySlots()

			fmt.Printf("shared-config dictionary: %d/%d slots used\n", sharedConfigSlots-sharedConfigEmpty, sharedConfigSlots)
			fmt.Printf("global dictionary:        %d/%d slots used\n", globalSlots-globalEmpty, globalSlots)
			fmt.Printf("registered settings assemblies: %d\n", regions.Global.RegisteredSettingsAssemblyCount())
			return nil
		},
	}
}
