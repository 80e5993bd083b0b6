package http

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/traincore/traincore-lms/internal/progress"
)

// GET /courses/{courseID}/progress/export
// Streams an xlsx workbook: one summary sheet, one row per enrollment.
func ExportCourseProgressHandler(agg *progress.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := chi.URLParam(r, "courseID")
		sum, err := agg.CourseSummary(r.Context(), courseID)
		if err != nil {
			writeError(w, err)
			return
		}

		f := excelize.NewFile()
		defer func() {
			if err := f.Close(); err != nil {
				log.Printf("close workbook: %v", err)
			}
		}()

		const sheet = "Progress"
		f.SetSheetName("Sheet1", sheet)
		headers := []string{"Trainee", "Enrollment", "Status", "Progress %", "Started", "Completed"}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			_ = f.SetCellValue(sheet, cell, h)
		}
		for row, e := range sum.PerTrainee {
			values := []interface{}{
				e.TraineeID,
				e.ID,
				e.Status,
				e.ProgressPct,
				formatUnix(e.StartedAt),
				formatUnix(e.CompletedAt),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				_ = f.SetCellValue(sheet, cell, v)
			}
		}

		statsRow := len(sum.PerTrainee) + 3
		stats := [][2]interface{}{
			{"Enrollments", sum.Enrollments},
			{"Not started", sum.NotStarted},
			{"In progress", sum.InProgress},
			{"Completed", sum.Completed},
			{"Dropped", sum.Dropped},
			{"Average progress %", sum.AvgProgress},
		}
		for i, kv := range stats {
			keyCell, _ := excelize.CoordinatesToCellName(1, statsRow+i)
			valCell, _ := excelize.CoordinatesToCellName(2, statsRow+i)
			_ = f.SetCellValue(sheet, keyCell, kv[0])
			_ = f.SetCellValue(sheet, valCell, kv[1])
		}

		w.Header().Set("Content-Type",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="course-%s-progress.xlsx"`, courseID))
		if err := f.Write(w); err != nil {
			log.Printf("write workbook for course %s: %v", courseID, err)
		}
	}
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04")
}
