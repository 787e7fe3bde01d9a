package analytics

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase/core"
)

// ExportFilename is the attachment name of the visits export.
const ExportFilename = "visits_export.csv"

var exportHeader = []string{
	"Timestamp", "Path", "Method", "Status", "Response ms", "Visitor", "Session",
	"User", "Referer", "User Agent", "IP Hash", "Country", "City",
	"UTM Source", "UTM Medium", "UTM Campaign", "Bot",
}

func exportRecord(v Visit) []string {
	return []string{
		v.Timestamp.UTC().Format("2006-01-02 15:04"),
		v.Path,
		v.Method,
		strconv.Itoa(v.StatusCode),
		strconv.FormatInt(v.ResponseMs, 10),
		v.VisitorID,
		v.SessionKey,
		v.UserID,
		v.Referer,
		v.UserAgent,
		v.IPHash,
		v.Geo.Country,
		v.Geo.City,
		v.UTM.Source,
		v.UTM.Medium,
		v.UTM.Campaign,
		strconv.FormatBool(v.IsBot),
	}
}

// WriteVisitsCSV streams the window's visits as CSV rows to w. Rows are
// buffered, so a query that fails before the buffer first fills leaves w
// untouched.
func WriteVisitsCSV(ctx context.Context, d *Dashboard, win Window, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}

	err := d.Export(ctx, win, func(v Visit) error {
		return cw.Write(exportRecord(v))
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// attachment sends the CSV headers on the first write.
type attachment struct {
	e       *core.RequestEvent
	started bool
}

func (a *attachment) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		a.e.Response.Header().Set("Content-Type", "text/csv; charset=utf-8")
		a.e.Response.Header().Set("Content-Disposition", `attachment; filename="`+ExportFilename+`"`)
		a.e.Response.WriteHeader(http.StatusOK)
	}
	return a.e.Response.Write(p)
}

func (h *dashboardHandlers) exportVisits(e *core.RequestEvent) error {
	out := &attachment{e: e}

	err := WriteVisitsCSV(e.Request.Context(), h.dashboard, h.window(e), out)
	if err == nil {
		return nil
	}

	h.logFailure(e, "export", err)
	if !out.started {
		return e.InternalServerError("Failed to export visits.", err)
	}
	// Already streaming; the client sees a truncated file.
	return nil
}
