package sync

import (
	"fmt"
	"time"

	"go-dbsync/internal/engine"
	"go-dbsync/internal/models"
	"go-dbsync/pkg/utils"

	"github.com/xuri/excelize/v2"
)

const conflictSheet = "Conflicts"

var conflictColumns = []string{"Record Key", "Field", "Slave Column", "Master Value", "Slave Value", "Status", "Detected At", "Resolved At"}

// exportConflicts writes one row per conflicting field. slaveColumn maps a
// master column to the slave column it syncs into.
func exportConflicts(conflicts []models.Conflict, slaveColumn func(string) string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", conflictSheet); err != nil {
		return nil, err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	for i, col := range conflictColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(conflictSheet, cell, col)
		f.SetCellStyle(conflictSheet, cell, cell, headerStyle)
	}

	row := 2
	for _, c := range conflicts {
		resolved := ""
		if c.ResolvedAt != nil {
			resolved = c.ResolvedAt.UTC().Format(time.RFC3339)
		}
		for _, field := range c.ConflictingFields {
			slaveCol := slaveColumn(field)
			values := []interface{}{
				c.RecordKey,
				field,
				slaveCol,
				engine.Stringify(c.MasterData[field]),
				engine.Stringify(c.SlaveData[slaveCol]),
				string(c.ResolutionStatus),
				c.CreatedAt.UTC().Format(time.RFC3339),
				resolved,
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				f.SetCellValue(conflictSheet, cell, v)
			}
			row++
		}
	}

	for i := range conflictColumns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(conflictSheet, col, col, 20)
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func exportFilename(cfg *models.SyncConfig, job *models.SyncJob) string {
	name := utils.Slugify(cfg.Name)
	if name == "" {
		name = "sync"
	}
	return fmt.Sprintf("%s-conflicts-%s.xlsx", name, job.ID.Hex())
}
