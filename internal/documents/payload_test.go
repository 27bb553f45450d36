package documents

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/embalage-erp/embalage-erp/internal/masterdata"
	"github.com/embalage-erp/embalage-erp/internal/procurement"
	"github.com/embalage-erp/embalage-erp/internal/sales"
)

func TestQuotationDocument(t *testing.T) {
	q := sales.Quotation{
		Reference: "DV-1A2B3C",
		IssueDate: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Currency:  "DZD",
		Notes:     "validité 30 jours",
	}
	lines := []sales.QuotationLine{
		{
			LineNumber:      1,
			Description:     "caisse simple cannelure",
			CaisseLengthMM:  400,
			CaisseWidthMM:   300,
			CaisseHeightMM:  250,
			Quantity:        "environ 2000",
			NumericQuantity: 2000,
			UnitPrice:       decimal.RequireFromString("85.50"),
		},
	}
	client := masterdata.Client{Name: "SARL Fruits du Sud", Address: "Zone industrielle, Blida"}

	doc, err := QuotationDocument(q, lines, client)
	require.NoError(t, err)
	require.Equal(t, "devis-DV-1A2B3C.pdf", doc.Filename)
	require.Contains(t, doc.HTML, "Devis DV-1A2B3C")
	require.Contains(t, doc.HTML, "15/03/2026")
	require.Contains(t, doc.HTML, "SARL Fruits du Sud")
	require.Contains(t, doc.HTML, "400×300×250 mm")
	require.Contains(t, doc.HTML, "environ 2000")
	require.Contains(t, doc.HTML, "validité 30 jours")
	// 2000 x 85.50 with French grouping
	require.Contains(t, doc.HTML, "171")
	require.Contains(t, doc.HTML, "000,00")
}

func TestPurchaseOrderDocumentFilename(t *testing.T) {
	order := procurement.SupplierOrder{
		Reference: "BC03/2026",
		OrderDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Currency:  "DZD",
	}
	lines := []procurement.LineItem{
		{
			LineNumber:      1,
			ArticleCode:     "PLQ-800-1200",
			PlaqueWidthMM:   800,
			PlaqueLengthMM:  1200,
			PlaqueFlapMM:    40,
			UnitPrice:       decimal.RequireFromString("35.00"),
			OrderedQuantity: 100,
		},
	}
	supplier := masterdata.Supplier{Name: "Cartonnerie Atlas"}

	doc, err := PurchaseOrderDocument(order, lines, supplier)
	require.NoError(t, err)
	require.Equal(t, "bc-BC03-2026.pdf", doc.Filename, "slash in the reference cannot reach the filename")
	require.Contains(t, doc.HTML, "Bon de commande BC03/2026")
	require.Contains(t, doc.HTML, "800×1200 rabat 40 mm")
}

func TestInvoiceDocumentTotals(t *testing.T) {
	order := sales.ClientOrder{Reference: "CM-AAAAAA", OrderDate: time.Now(), Currency: "DZD"}
	lines := []sales.OrderLine{
		{LineNumber: 1, Description: "caisse A", Quantity: "100", NumericQuantity: 100, UnitPrice: decimal.RequireFromString("10.00")},
		{LineNumber: 2, Description: "caisse B", Quantity: "50", NumericQuantity: 50, UnitPrice: decimal.RequireFromString("20.00")},
	}
	client := masterdata.Client{Name: "EURL Datteries"}

	doc, err := InvoiceDocument("FC-0F0F0F", order, lines, client)
	require.NoError(t, err)
	require.Contains(t, doc.HTML, "Facture FC-0F0F0F")
	require.Contains(t, doc.HTML, "2")
	require.True(t, strings.Contains(doc.HTML, "000,00"), "total 2000 formatted with French decimals")
}
