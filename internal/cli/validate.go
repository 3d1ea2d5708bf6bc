// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bramblecore/procd/internal/catalog"
	"github.com/bramblecore/procd/internal/config"
	"github.com/bramblecore/procd/internal/inifile"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "load procd's config and catalog and report the first error, without starting anything",
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	doc, err := inifile.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	specs, err := catalog.Load(doc, doc.Groups(), cfg.BootMode)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	cmd.Printf("ok: %d service(s) in %s, boot mode %q\n", len(specs), cfg.CatalogPath, cfg.BootMode)
	return nil
}
