package documents

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/embalage-erp/embalage-erp/internal/masterdata"
	"github.com/embalage-erp/embalage-erp/internal/procurement"
	"github.com/embalage-erp/embalage-erp/internal/sales"
)

// Document is a rendered printable, ready for PDF conversion.
type Document struct {
	Filename string
	Title    string
	HTML     string
}

var frPrinter = message.NewPrinter(language.French)

// formatAmount renders a money amount with French digit grouping, the way
// the paper documents have always shown it.
func formatAmount(d decimal.Decimal) string {
	f, _ := d.Float64()
	return frPrinter.Sprintf("%.2f", f)
}

func formatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

type documentLine struct {
	Number      int
	Description string
	Dimensions  string
	Quantity    string
	UnitPrice   string
	Total       string
}

type documentData struct {
	Title     string
	Reference string
	Date      string
	PartyName string
	PartyInfo []string
	Currency  string
	Lines     []documentLine
	Total     string
	Notes     string
}

var documentTmpl = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>{{.Title}} {{.Reference}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; margin: 40px; }
h1 { font-size: 18px; }
table { width: 100%; border-collapse: collapse; margin-top: 24px; }
th, td { border: 1px solid #444; padding: 6px 8px; text-align: left; }
th { background: #eee; }
td.num, th.num { text-align: right; }
tfoot td { font-weight: bold; }
.meta { margin-top: 8px; color: #333; }
.notes { margin-top: 24px; font-style: italic; }
</style>
</head>
<body>
<h1>{{.Title}} {{.Reference}}</h1>
<div class="meta">Date : {{.Date}}</div>
<div class="meta">{{.PartyName}}</div>
{{range .PartyInfo}}<div class="meta">{{.}}</div>
{{end}}<table>
<thead>
<tr><th>#</th><th>Désignation</th><th>Dimensions</th><th class="num">Quantité</th><th class="num">P.U. ({{.Currency}})</th><th class="num">Montant</th></tr>
</thead>
<tbody>
{{range .Lines}}<tr><td>{{.Number}}</td><td>{{.Description}}</td><td>{{.Dimensions}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.UnitPrice}}</td><td class="num">{{.Total}}</td></tr>
{{end}}</tbody>
<tfoot>
<tr><td colspan="5">Total {{.Currency}}</td><td class="num">{{.Total}}</td></tr>
</tfoot>
</table>
{{if .Notes}}<div class="notes">{{.Notes}}</div>{{end}}
</body>
</html>
`))

func render(data documentData, filename string) (Document, error) {
	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, data); err != nil {
		return Document{}, fmt.Errorf("documents: render %s: %w", filename, err)
	}
	return Document{Filename: filename, Title: data.Title, HTML: buf.String()}, nil
}

// QuotationDocument builds the printable devis.
func QuotationDocument(q sales.Quotation, lines []sales.QuotationLine, client masterdata.Client) (Document, error) {
	data := documentData{
		Title:     "Devis",
		Reference: q.Reference,
		Date:      formatDate(q.IssueDate),
		PartyName: client.Name,
		PartyInfo: partyInfo(client.Address, client.Phone),
		Currency:  q.Currency,
		Notes:     q.Notes,
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Total())
		data.Lines = append(data.Lines, documentLine{
			Number:      line.LineNumber,
			Description: line.Description,
			Dimensions:  boxDimensions(line.CaisseLengthMM, line.CaisseWidthMM, line.CaisseHeightMM),
			Quantity:    line.Quantity,
			UnitPrice:   formatAmount(line.UnitPrice),
			Total:       formatAmount(line.Total()),
		})
	}
	data.Total = formatAmount(total)
	return render(data, fmt.Sprintf("devis-%s.pdf", q.Reference))
}

// OrderConfirmationDocument builds the printable commande client.
func OrderConfirmationDocument(order sales.ClientOrder, lines []sales.OrderLine, client masterdata.Client) (Document, error) {
	data := documentData{
		Title:     "Commande",
		Reference: order.Reference,
		Date:      formatDate(order.OrderDate),
		PartyName: client.Name,
		PartyInfo: partyInfo(client.Address, client.Phone),
		Currency:  order.Currency,
		Notes:     order.Notes,
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Total())
		data.Lines = append(data.Lines, documentLine{
			Number:      line.LineNumber,
			Description: line.Description,
			Dimensions:  boxDimensions(line.CaisseLengthMM, line.CaisseWidthMM, line.CaisseHeightMM),
			Quantity:    line.Quantity,
			UnitPrice:   formatAmount(line.UnitPrice),
			Total:       formatAmount(line.Total()),
		})
	}
	data.Total = formatAmount(total)
	return render(data, fmt.Sprintf("commande-%s.pdf", order.Reference))
}

// PurchaseOrderDocument builds the printable bon de commande sent to a
// supplier.
func PurchaseOrderDocument(order procurement.SupplierOrder, lines []procurement.LineItem, supplier masterdata.Supplier) (Document, error) {
	data := documentData{
		Title:     "Bon de commande",
		Reference: order.Reference,
		Date:      formatDate(order.OrderDate),
		PartyName: supplier.Name,
		PartyInfo: partyInfo(supplier.Address, supplier.Phone),
		Currency:  order.Currency,
		Notes:     order.Notes,
	}
	total := decimal.Zero
	for _, line := range lines {
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.OrderedQuantity)))
		total = total.Add(lineTotal)
		data.Lines = append(data.Lines, documentLine{
			Number:      line.LineNumber,
			Description: line.ArticleCode,
			Dimensions:  plaqueDimensions(line.PlaqueWidthMM, line.PlaqueLengthMM, line.PlaqueFlapMM),
			Quantity:    fmt.Sprintf("%d", line.OrderedQuantity),
			UnitPrice:   formatAmount(line.UnitPrice),
			Total:       formatAmount(lineTotal),
		})
	}
	data.Total = formatAmount(total)
	return render(data, fmt.Sprintf("bc-%s.pdf", sanitizeRef(order.Reference)))
}

// DeliveryNoteDocument builds the printable bon de livraison for finished
// goods going out to the client.
func DeliveryNoteDocument(reference string, order sales.ClientOrder, lines []sales.OrderLine, client masterdata.Client) (Document, error) {
	data := documentData{
		Title:     "Bon de livraison",
		Reference: reference,
		Date:      formatDate(time.Now()),
		PartyName: client.Name,
		PartyInfo: partyInfo(client.Address, client.Phone),
		Currency:  order.Currency,
	}
	for _, line := range lines {
		data.Lines = append(data.Lines, documentLine{
			Number:      line.LineNumber,
			Description: line.Description,
			Dimensions:  boxDimensions(line.CaisseLengthMM, line.CaisseWidthMM, line.CaisseHeightMM),
			Quantity:    line.Quantity,
		})
	}
	data.Total = formatAmount(decimal.Zero)
	return render(data, fmt.Sprintf("bl-%s.pdf", reference))
}

// InvoiceDocument builds the printable facture.
func InvoiceDocument(reference string, order sales.ClientOrder, lines []sales.OrderLine, client masterdata.Client) (Document, error) {
	data := documentData{
		Title:     "Facture",
		Reference: reference,
		Date:      formatDate(time.Now()),
		PartyName: client.Name,
		PartyInfo: partyInfo(client.Address, client.Phone),
		Currency:  order.Currency,
		Notes:     order.Notes,
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Total())
		data.Lines = append(data.Lines, documentLine{
			Number:      line.LineNumber,
			Description: line.Description,
			Dimensions:  boxDimensions(line.CaisseLengthMM, line.CaisseWidthMM, line.CaisseHeightMM),
			Quantity:    line.Quantity,
			UnitPrice:   formatAmount(line.UnitPrice),
			Total:       formatAmount(line.Total()),
		})
	}
	data.Total = formatAmount(total)
	return render(data, fmt.Sprintf("facture-%s.pdf", reference))
}

func partyInfo(parts ...string) []string {
	info := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			info = append(info, part)
		}
	}
	return info
}

func boxDimensions(lengthMM, widthMM, heightMM int) string {
	if lengthMM == 0 && widthMM == 0 && heightMM == 0 {
		return ""
	}
	return fmt.Sprintf("%d×%d×%d mm", lengthMM, widthMM, heightMM)
}

func plaqueDimensions(widthMM, lengthMM, flapMM int) string {
	if flapMM == 0 {
		return fmt.Sprintf("%d×%d mm", widthMM, lengthMM)
	}
	return fmt.Sprintf("%d×%d rabat %d mm", widthMM, lengthMM, flapMM)
}

func sanitizeRef(reference string) string {
	out := []rune(reference)
	for i, r := range out {
		if r == '/' {
			out[i] = '-'
		}
	}
	return string(out)
}
