/*
 * Copyright 2024 The Framepipe Authors.
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
 */

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "framepipe",
		Short: "Convert raw telemetry frames into structured frame documents",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the frame pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(configPath)
		},
	}
	run.Flags().StringVarP(&configPath, "config", "c", "framepipe.yaml", "configuration file")

	root.AddCommand(run)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
