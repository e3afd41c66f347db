// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"

	"github.com/AleutianAI/dispatchperf/cmd/dispatchperf/config"
	"github.com/AleutianAI/dispatchperf/pkg/ux"
	"github.com/AleutianAI/dispatchperf/services/dispatch/strategy"
)

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the registered dispatch strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := strategy.DefaultRegistry()
			rows := make([][]string, 0, reg.Count())
			for _, s := range reg.Ordered() {
				core := "no"
				if s.Core {
					core = "yes"
				}
				rows = append(rows, []string{s.Name, s.Mechanism, core, s.Description})
			}
			return ux.RenderTable(c.stdout, "Dispatch strategies",
				[]string{"name", "mechanism", "core", "description"}, rows)
		},
	}
}

func (c *cli) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default harness configuration to a YAML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "dispatchperf.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			c.printer.Success("wrote " + path)
			return nil
		},
	}
}
