package report

import (
	"bytes"
	"encoding/csv"

	"chapattend/internal/attendance"
)

// header matches the column order the attendance sheet has always used.
var header = []string{"First Name", "Last Name", "Arrival Time", "Status", "Timestamp"}

// Render produces the CSV export for a session and a suggested filename.
// Rows appear in the stored (check-in) order; an empty record set yields a
// header-only file. Fields containing delimiters are quoted per RFC 4180.
func Render(sess attendance.Session, records []attendance.Record) ([]byte, string) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(header)
	for _, rec := range records {
		_ = w.Write([]string{
			rec.FirstName,
			rec.LastName,
			rec.ArrivalTime,
			string(rec.Status),
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	w.Flush()
	return buf.Bytes(), Filename(sess)
}

// Filename returns the download name for a session's export.
func Filename(sess attendance.Session) string {
	return "Chapter_Attendance_" + sess.Date + ".csv"
}
