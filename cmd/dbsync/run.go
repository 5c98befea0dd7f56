package main

import (
	"fmt"
	"os"
	"strings"

	"go-dbsync/internal/models"

	"github.com/spf13/cobra"
)

var (
	triggeredBy string
	statusFlag  string
	exportPath  string
)

var runCmd = &cobra.Command{
	Use:   "run [config-id]",
	Short: "Run a sync config once and wait for it to finish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := app.syncService.RunSync(cmd.Context(), args[0], triggeredBy)
		if err != nil {
			return err
		}
		if err := printResult(job, func() { printJob(job) }); err != nil {
			return err
		}
		if job.Status == models.JobStatusFailed {
			return fmt.Errorf("job %s failed", job.ID.Hex())
		}
		return nil
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts [job-id]",
	Short: "List the conflicts a job recorded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportPath != "" {
			data, _, err := app.syncService.ExportConflicts(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := os.WriteFile(exportPath, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", exportPath)
			return nil
		}

		conflicts, err := app.syncService.ListConflicts(cmd.Context(), args[0], models.ResolutionStatus(statusFlag))
		if err != nil {
			return err
		}
		return printResult(conflicts, func() {
			for _, c := range conflicts {
				fmt.Printf("%s  key=%s  %s  fields=%s\n", c.ID.Hex(), c.RecordKey, c.ResolutionStatus, strings.Join(c.ConflictingFields, ","))
			}
			fmt.Printf("%d conflict(s)\n", len(conflicts))
		})
	},
}

func printJob(job *models.SyncJob) {
	fmt.Printf("Job %s: %s\n", job.ID.Hex(), job.Status)
	fmt.Printf("  processed %d/%d  inserted %d  updated %d  deleted %d  conflicts %d  errors %d\n",
		job.ProcessedRecords, job.TotalRecords, job.InsertedRecords, job.UpdatedRecords,
		job.DeletedRecords, job.ConflictCount, job.ErrorCount)
	if job.ErrorMessage != "" {
		fmt.Printf("  error: %s\n", job.ErrorMessage)
	}
}

func init() {
	runCmd.Flags().StringVar(&triggeredBy, "triggered-by", "cli", "operator recorded on the job")
	conflictsCmd.Flags().StringVar(&statusFlag, "status", "", "only conflicts with this resolution status")
	conflictsCmd.Flags().StringVar(&exportPath, "export", "", "write an xlsx export to this path instead of listing")
}
