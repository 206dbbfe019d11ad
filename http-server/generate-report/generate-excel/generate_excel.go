package generate_excel

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"estimator/http-server/evaluate"
	"estimator/internal/service/estimate"
)

type ExcelGenerator func(est *estimate.Estimate) ([]byte, error)

// EvaluateExcel evaluates a template like the JSON endpoint and answers with
// the estimate as an xlsx workbook.
func EvaluateExcel(log *slog.Logger, ev evaluate.Evaluator, gen ExcelGenerator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.report.EvaluateExcel"

		est := evaluate.Run(w, r, log, op, ev)
		if est == nil {
			return
		}

		excelBytes, err := gen(est)
		if err != nil {
			log.Error("failed to generate excel", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		fileName := fmt.Sprintf("Estimate_%s_%s.xlsx", est.TemplateCode, time.Now().Format("2006-01-02_150405"))

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", "attachment; filename="+fileName)
		if _, err := w.Write(excelBytes); err != nil {
			log.Warn("failed to write excel", slog.String("op", op), slog.String("error", err.Error()))
		}
	}
}
