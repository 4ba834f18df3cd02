// Package reportsvc renders grade documents as PDF.
package reportsvc

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/submission"
	"github.com/trezcool/alama/core/user"
)

type Renderer struct {
	appName string
	now     func() time.Time // mockable
}

var _ submission.SheetRenderer = (*Renderer)(nil)

func NewRenderer(conf *core.Config) *Renderer {
	return &Renderer{appName: conf.AppName, now: time.Now}
}

type document struct {
	*gofpdf.Fpdf
	tr func(string) string
}

func (r *Renderer) newDocument(title string) document {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator(r.appName, true)
	pdf.AddPage()
	doc := document{Fpdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	doc.SetFont("Arial", "B", 18)
	doc.Cell(0, 8, doc.tr(r.appName))
	doc.Ln(9)
	doc.SetDrawColor(40, 145, 108)
	doc.SetLineWidth(0.5)
	doc.Line(10, doc.GetY(), 200, doc.GetY())
	doc.Ln(6)

	doc.SetFont("Arial", "B", 14)
	doc.Cell(0, 8, doc.tr(title))
	doc.Ln(12)
	return doc
}

func (doc document) field(label, value string) {
	doc.SetFont("Arial", "", 10)
	doc.Cell(35, 6, doc.tr(label))
	doc.SetFont("Arial", "B", 10)
	doc.Cell(0, 6, doc.tr(value))
	doc.Ln(6)
}

type column struct {
	title string
	width float64
	align string
}

func (doc document) header(cols []column) {
	doc.SetFont("Arial", "B", 9)
	doc.SetFillColor(40, 145, 108)
	doc.SetTextColor(255, 255, 255)
	for i, col := range cols {
		ln := 0
		if i == len(cols)-1 {
			ln = 1
		}
		doc.CellFormat(col.width, 8, doc.tr(col.title), "1", ln, col.align, true, 0, "")
	}
	doc.SetTextColor(0, 0, 0)
	doc.SetFont("Arial", "", 9)
	doc.SetFillColor(245, 245, 245)
}

func (doc document) row(cols []column, fill bool, values ...string) {
	for i, col := range cols {
		ln := 0
		if i == len(cols)-1 {
			ln = 1
		}
		doc.CellFormat(col.width, 7, doc.tr(values[i]), "1", ln, col.align, fill, 0, "")
	}
}

func (r *Renderer) footer(doc document) {
	doc.Ln(8)
	doc.SetFont("Arial", "I", 8)
	doc.SetTextColor(100, 100, 100)
	doc.Cell(0, 5, fmt.Sprintf("Generated on %s", r.now().Format("January 02, 2006 at 3:04 PM")))
	doc.SetTextColor(0, 0, 0)
}

var gradeSheetCols = []column{
	{title: "#", width: 10, align: "C"},
	{title: "STUDENT", width: 80, align: "L"},
	{title: "PERCENTAGE", width: 35, align: "C"},
	{title: "GRADE", width: 30, align: "C"},
	{title: "REMARKS", width: 35, align: "C"},
}

// GradeSheetPDF renders the grades snapshot of sub.
func (r *Renderer) GradeSheetPDF(w io.Writer, sub submission.Submission) error {
	doc := r.newDocument("Grade Sheet")
	doc.field("Class:", sub.ClassTitle())
	doc.field("Grade type:", sub.GradeTypeName)
	doc.field("Teacher:", sub.TeacherName)
	doc.field("Status:", sub.Status)
	doc.field("Submitted:", sub.SubmittedAt.Format("2006-01-02 15:04 MST"))
	if !sub.ReviewedAt.IsZero() {
		doc.field("Reviewed:", fmt.Sprintf("%s by %s", sub.ReviewedAt.Format("2006-01-02 15:04 MST"), sub.ReviewerName))
	}
	doc.Ln(4)

	doc.header(gradeSheetCols)
	for i, g := range sub.Grades {
		doc.row(gradeSheetCols, i%2 == 0,
			fmt.Sprintf("%d", i+1),
			g.StudentName,
			fmt.Sprintf("%.2f%%", g.Percentage),
			fmt.Sprintf("%.2f", g.GradePoint),
			g.Remarks,
		)
	}
	if len(sub.Grades) == 0 {
		doc.SetFont("Arial", "I", 10)
		doc.Cell(0, 10, "No grades.")
		doc.Ln(10)
	}

	r.footer(doc)
	return doc.Output(w)
}

var reportCardCols = []column{
	{title: "CLASS", width: 70, align: "L"},
	{title: "GRADE TYPE", width: 45, align: "L"},
	{title: "PERCENTAGE", width: 30, align: "C"},
	{title: "GRADE", width: 20, align: "C"},
	{title: "REMARKS", width: 25, align: "C"},
}

// ReportCardPDF renders the approved grades of a student.
func (r *Renderer) ReportCardPDF(w io.Writer, student user.User, classes []submission.ClassGrades) error {
	doc := r.newDocument("Report Card")
	doc.field("Student:", student.DisplayName())
	if student.Username != "" {
		doc.field("Username:", student.Username)
	}
	doc.Ln(4)

	doc.header(reportCardCols)
	var n int
	for _, cg := range classes {
		for _, gt := range cg.GradeTypes {
			if gt.Grade == nil {
				continue
			}
			doc.row(reportCardCols, n%2 == 0,
				cg.Class.Title(),
				fmt.Sprintf("%s (%s%%)", gt.Name, formatFloat(gt.Weight)),
				fmt.Sprintf("%.2f%%", gt.Grade.Percentage),
				fmt.Sprintf("%.2f", gt.Grade.GradePoint),
				gt.Grade.Remarks,
			)
			n++
		}
		if cg.Final != nil {
			doc.SetFont("Arial", "B", 9)
			doc.row(reportCardCols, false,
				cg.Class.Title(),
				"FINAL",
				fmt.Sprintf("%.2f%%", cg.Final.Percentage),
				fmt.Sprintf("%.2f", cg.Final.GradePoint),
				cg.Final.Remarks,
			)
			doc.SetFont("Arial", "", 9)
			n++
		}
	}
	if n == 0 {
		doc.SetFont("Arial", "I", 10)
		doc.Cell(0, 10, "No grades available or released at this time.")
		doc.Ln(10)
	}

	r.footer(doc)
	return doc.Output(w)
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}
