// Package render turns billing documents into printable artifacts.
package render

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/Ign14/PYMERP-sub000/internal/model"
)

// Rendered is one artifact ready to be archived.
type Rendered struct {
	Content     []byte
	Filename    string
	ContentType string
}

// Renderer produces the locally generated artifact of a document.
type Renderer interface {
	RenderFiscal(ctx context.Context, doc *model.FiscalDocument, sale *model.Sale) (*Rendered, error)
	RenderNonFiscal(ctx context.Context, doc *model.NonFiscalDocument, sale *model.Sale) (*Rendered, error)
}

// PDFRenderer lays documents out on a single A4 page.
type PDFRenderer struct {
	// CompanyName is printed in the header when set.
	CompanyName string
}

func NewPDFRenderer(companyName string) *PDFRenderer {
	return &PDFRenderer{CompanyName: companyName}
}

var _ Renderer = (*PDFRenderer)(nil)

func (r *PDFRenderer) RenderFiscal(ctx context.Context, doc *model.FiscalDocument, sale *model.Sale) (*Rendered, error) {
	if doc == nil || sale == nil {
		return nil, fmt.Errorf("render fiscal: document and sale are required")
	}
	title := string(doc.DocumentType)
	if doc.Offline || doc.Number == "" {
		title += " (CONTINGENCIA)"
	}
	lines := []row{
		{"Number", doc.DisplayNumber()},
		{"Provisional number", doc.ProvisionalNumber},
		{"Tax mode", string(doc.TaxMode)},
		{"Status", string(doc.Status)},
	}
	content, err := r.render(ctx, title, lines, sale, doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &Rendered{
		Content:     content,
		Filename:    filename(doc.DisplayNumber(), doc.ID),
		ContentType: model.ContentTypePDF,
	}, nil
}

func (r *PDFRenderer) RenderNonFiscal(ctx context.Context, doc *model.NonFiscalDocument, sale *model.Sale) (*Rendered, error) {
	if doc == nil || sale == nil {
		return nil, fmt.Errorf("render non-fiscal: document and sale are required")
	}
	lines := []row{
		{"Number", doc.Number},
		{"Status", string(doc.Status)},
	}
	content, err := r.render(ctx, string(doc.DocumentType), lines, sale, doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &Rendered{
		Content:     content,
		Filename:    filename(doc.Number, doc.ID),
		ContentType: model.ContentTypePDF,
	}, nil
}

type row struct {
	label string
	value string
}

func (r *PDFRenderer) render(ctx context.Context, title string, lines []row, sale *model.Sale, issuedAt time.Time) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.AddPage()

	if r.CompanyName != "" {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, r.CompanyName)
		pdf.Ln(10)
	}
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, title)
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 11)
	for _, l := range lines {
		if l.value == "" {
			continue
		}
		pdf.CellFormat(55, 7, l.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, l.value, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(55, 7, "Issued", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, issuedAt.UTC().Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	if sale.CustomerName != "" {
		pdf.CellFormat(55, 7, "Customer", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, sale.CustomerName, "", 1, "L", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 11)
	for _, t := range []row{
		{"Net", sale.Net.StringFixed(2)},
		{"Tax", sale.Tax.StringFixed(2)},
		{"Total", sale.Total.StringFixed(2)},
	} {
		pdf.CellFormat(140, 7, t.label, "T", 0, "R", false, 0, "")
		pdf.CellFormat(0, 7, t.value, "T", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func filename(number, id string) string {
	base := number
	if base == "" {
		base = id
	}
	return strings.ReplaceAll(base, "/", "-") + ".pdf"
}
