package service

import (
	"bytes"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/github"
	"github.com/Sumatoshi-tech/codereport/pkg/report"
	"github.com/Sumatoshi-tech/codereport/pkg/reportstore"
)

// Document renders rep in format f as a named document ready for storage
// or download. ref names PR reports; pass nil for uploads.
func Document(rep *analysis.Report, f report.Format, ref *github.PRRef, opts report.Options) (reportstore.Document, error) {
	var buf bytes.Buffer

	err := report.Render(&buf, rep, f, opts)
	if err != nil {
		return reportstore.Document{}, fmt.Errorf("render %s report: %w", f, err)
	}

	return reportstore.Document{
		Name:        Filename(rep.GeneratedAt, f, ref),
		ContentType: f.ContentType(),
		Body:        buf.Bytes(),
	}, nil
}

// Filename returns the download name of a report generated at ts.
func Filename(ts time.Time, f report.Format, ref *github.PRRef) string {
	if ref != nil {
		return report.PRFilename(ref.Owner, ref.Repo, ref.Number, ts, f)
	}

	return report.UploadFilename(ts, f)
}
