// Package contractdoc renders the summary PDF for a lease contract.
package contractdoc

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/rongwang/land-rental-server/internal/models"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	coreFamily = "Helvetica"
	utf8Family = "contract"
)

// PDFRenderer draws a single-page contract summary with a QR code that links
// back to the contract record.
//
// Without a TrueType font only Latin-1 text can be drawn; other characters
// (Thai titles and terms, for one) come out as dots. WithFont fixes that.
type PDFRenderer struct {
	BaseURL string
	font    []byte
}

// NewPDFRenderer creates a renderer; baseURL prefixes the QR link
func NewPDFRenderer(baseURL string) *PDFRenderer {
	return &PDFRenderer{BaseURL: strings.TrimRight(baseURL, "/")}
}

// WithFont loads a UTF-8 TrueType font from path and uses it for all text
func (r *PDFRenderer) WithFont(path string) (*PDFRenderer, error) {
	font, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read contract font: %w", err)
	}
	r.font = font
	return r, nil
}

// VerifyURL is the link encoded in the QR code
func (r *PDFRenderer) VerifyURL(contract *models.Contract) string {
	return fmt.Sprintf("%s/api/contracts/%s", r.BaseURL, contract.ID)
}

// page carries the font family and the text translation for one document
type page struct {
	pdf    *gofpdf.Fpdf
	family string
	tr     func(string) string
}

func (p page) font(style string, size float64) {
	p.pdf.SetFont(p.family, style, size)
}

func (r *PDFRenderer) newPage() page {
	pdf := gofpdf.New("P", "mm", "A4", "")
	if len(r.font) > 0 {
		for _, style := range []string{"", "B", "I"} {
			pdf.AddUTF8FontFromBytes(utf8Family, style, r.font)
		}
		return page{pdf: pdf, family: utf8Family, tr: func(s string) string { return s }}
	}
	return page{pdf: pdf, family: coreFamily, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

// Render returns the PDF bytes for contract on listing
func (r *PDFRenderer) Render(contract *models.Contract, listing *models.Listing) ([]byte, error) {
	p := r.newPage()
	pdf := p.pdf
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("could not load contract font: %w", err)
	}
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	// --- Header ---
	p.font("B", 20)
	pdf.Cell(0, 12, "LAND LEASE CONTRACT")
	pdf.Ln(12)
	p.font("", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Contract No. %s", contract.ContractNumber))
	pdf.Ln(12)

	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(6)

	// --- Summary + QR ---
	yStart := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, yStart, 120, 62, "F")

	pdf.SetXY(20, yStart+6)
	p.row("Parcel", listingTitle(listing))
	p.row("Tenant", contract.TenantID)
	p.row("Owner", contract.OwnerID)
	p.row("Term", fmt.Sprintf("%s to %s", contract.StartDate.Format("2006-01-02"), contract.EndDate.Format("2006-01-02")))
	p.row("Price per year", contract.PricePerYear.StringFixed(2))
	p.row("Monthly rent", contract.MonthlyRent.StringFixed(2))
	p.row("Deposit", contract.DepositAmount.StringFixed(2))
	p.row("Platform fee", contract.FeeRate.StringFixed(2)+" %")

	qrBytes, err := qrcode.Encode(r.VerifyURL(contract), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("could not encode QR code: %w", err)
	}
	pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(qrBytes))
	pdf.ImageOptions("qr", 145, yStart+5, 45, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")

	pdf.SetY(yStart + 70)

	// --- Terms ---
	p.font("B", 14)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(0, 9, "TERMS", "", 1, "L", true, 0, "")
	pdf.Ln(3)
	p.font("", 11)
	terms := contract.Terms
	if strings.TrimSpace(terms) == "" {
		terms = "Standard 12-month land lease. Rent is due monthly; the deposit is held until the end of the term."
	}
	pdf.MultiCell(0, 6, p.tr(terms), "", "", false)

	// --- Footer ---
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(15, 280, 195, 280)
	pdf.SetY(283)
	p.font("I", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Status: %s. Scan the code to view the contract record.", contract.Status), "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p page) row(label, value string) {
	x := p.pdf.GetX()
	p.font("B", 11)
	p.pdf.Cell(40, 7, label)
	p.font("", 11)
	p.pdf.Cell(70, 7, p.tr(value))
	p.pdf.Ln(7)
	p.pdf.SetX(x)
}

func listingTitle(l *models.Listing) string {
	if l == nil {
		return "-"
	}
	return l.Title
}
