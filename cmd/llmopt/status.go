// Copyright 2025 walteh LLC
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

package main

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/walteh/llmopt/pkg/partition"
	"github.com/walteh/llmopt/pkg/status"
	"gitlab.com/tozd/go/errors"
)

func newStatusCmd(root *rootOpts) *cobra.Command {
	var (
		failedOnly bool
		plain      bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what previous runs recorded",
		Long: `Status lists the records in the status store and how many of the
eligible files under the root are already completed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := root.loadConfig(ctx)
			if err != nil {
				return startup(err)
			}

			store, err := status.Open(ctx, cfg.StatusOptions())
			if err != nil {
				return startup(errors.Errorf("opening status store: %w", err))
			}
			defer store.Close()

			records, err := store.List(ctx)
			if err != nil {
				return errors.Errorf("listing records: %w", err)
			}
			if failedOnly {
				records = onlyFailed(records)
			}

			out := cmd.OutOrStdout()
			formatter := status.NewDefaultRecordFormatter()
			if plain {
				for _, r := range records {
					fmt.Fprintln(out, formatter.FormatRecord(r))
				}
			} else if err := renderTable(out, records); err != nil {
				return err
			}
			fmt.Fprintln(out, formatter.FormatCounts(records))

			files, err := partition.Discover(ctx, cfg.Root, cfg.Filter())
			if err != nil {
				return errors.Errorf("discovering files: %w", err)
			}
			done, err := store.LoadResumeSet(ctx, status.ResumeCompleted)
			if err != nil {
				return errors.Errorf("loading completed files: %w", err)
			}
			fmt.Fprintln(out, formatter.FormatProgress(len(files)-len(partition.FilterResumed(files, done)), len(files)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "only show failed records")
	cmd.Flags().BoolVar(&plain, "plain", false, "print one line per record instead of a table")
	return cmd
}

func onlyFailed(records []status.Record) []status.Record {
	out := records[:0:0]
	for _, r := range records {
		if r.Status == status.StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// renderTable prints records as a pterm table
func renderTable(w io.Writer, records []status.Record) error {
	if len(records) == 0 {
		return nil
	}
	data := pterm.TableData{{"Path", "Status", "Reason", "Updated"}}
	for _, r := range records {
		updated := ""
		if !r.UpdatedAt.IsZero() {
			updated = r.UpdatedAt.Local().Format("2006-01-02 15:04:05")
		}
		data = append(data, []string{r.Path, r.Status.String(), r.Reason, updated})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Errorf("rendering table: %w", err)
	}
	fmt.Fprintln(w, table)
	return nil
}
