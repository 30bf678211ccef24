package models

import "time"

// Report is the markdown analysis returned for one statement. ID is the memo key
// derived from the extracted text.
type Report struct {
	ID          string    `json:"id"`
	Markdown    string    `json:"markdown"`
	Failed      bool      `json:"failed"`
	Cached      bool      `json:"cached"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ReportFileName is the name offered for downloaded reports.
const ReportFileName = "financial_report.txt"
