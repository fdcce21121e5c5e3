package httpapi

import (
	"bytes"
	"fmt"

	"github.com/MP2EZ/being-sub014/internal/domain"

	"github.com/xuri/excelize/v2"
)

// HistoryExportHeader 历史导出表头
var HistoryExportHeader = []string{
	"Completed At",
	"Instrument",
	"Total Score",
	"Severity",
	"Crisis",
	"Suicidal Ideation",
	"Answered Items",
	"Result ID",
}

// GenerateHistoryExport 生成历史评估结果 Excel 文件
// results: 评估结果列表,为空时只生成表头
func GenerateHistoryExport(results []*domain.CompletedResult) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Assessment History"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 写入表头
	for col, header := range HistoryExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 列宽
	columnWidths := []float64{
		22, // Completed At
		12, // Instrument
		12, // Total Score
		20, // Severity
		10, // Crisis
		18, // Suicidal Ideation
		15, // Answered Items
		38, // Result ID
	}
	for i := range HistoryExportHeader {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, col, col, columnWidths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	// 写入数据
	for rowIdx, res := range results {
		row := rowIdx + 2 // 从第2行开始(第1行是表头)

		ideation := ""
		if res.SuicidalIdeation != nil {
			if *res.SuicidalIdeation {
				ideation = "Yes"
			} else {
				ideation = "No"
			}
		}
		crisis := "No"
		if res.IsCrisis {
			crisis = "Yes"
		}

		values := []any{
			res.CompletedAt.Format("2006-01-02 15:04:05"),
			string(res.InstrumentType),
			res.TotalScore,
			string(res.Severity),
			crisis,
			ideation,
			len(res.Answers),
			res.ResultID,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	// Write to bytes buffer
	// Note: File must remain open during Write operation
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}
