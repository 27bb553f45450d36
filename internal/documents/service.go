package documents

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/embalage-erp/embalage-erp/internal/masterdata"
	"github.com/embalage-erp/embalage-erp/internal/procurement"
	"github.com/embalage-erp/embalage-erp/internal/refs"
	"github.com/embalage-erp/embalage-erp/internal/sales"
	"github.com/embalage-erp/embalage-erp/internal/shared"
)

// Document kinds accepted by the renderer.
const (
	KindQuotation     = "quotation"
	KindClientOrder   = "client_order"
	KindPurchaseOrder = "purchase_order"
	KindDeliveryNote  = "delivery_note"
	KindInvoice       = "invoice"
)

// SalesPort is the slice of the sales service the renderer needs.
type SalesPort interface {
	GetQuotation(ctx context.Context, id int64) (sales.Quotation, []sales.QuotationLine, error)
	GetOrder(ctx context.Context, id int64) (sales.ClientOrder, []sales.OrderLine, error)
}

// ProcurementPort is the slice of the procurement service the renderer needs.
type ProcurementPort interface {
	GetOrder(ctx context.Context, id int64) (procurement.SupplierOrder, []procurement.LineItem, error)
}

// DirectoryPort resolves the parties named on documents.
type DirectoryPort interface {
	GetClient(ctx context.Context, id int64) (masterdata.Client, error)
	GetSupplier(ctx context.Context, id int64) (masterdata.Supplier, error)
}

// Renderer builds workflow documents and converts them to PDF files.
type Renderer struct {
	client      *Client
	sales       SalesPort
	procurement ProcurementPort
	directory   DirectoryPort
	outputDir   string
	logger      *slog.Logger
}

// NewRenderer constructs a Renderer writing PDFs under outputDir.
func NewRenderer(client *Client, salesPort SalesPort, procurementPort ProcurementPort, directory DirectoryPort, outputDir string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{client: client, sales: salesPort, procurement: procurementPort, directory: directory, outputDir: outputDir, logger: logger}
}

// Build assembles the printable document for a record without converting it.
func (r *Renderer) Build(ctx context.Context, kind string, sourceID int64) (Document, error) {
	switch kind {
	case KindQuotation:
		quotation, lines, err := r.sales.GetQuotation(ctx, sourceID)
		if err != nil {
			return Document{}, err
		}
		client, err := r.directory.GetClient(ctx, quotation.ClientID)
		if err != nil {
			return Document{}, err
		}
		return QuotationDocument(quotation, lines, client)
	case KindClientOrder:
		order, lines, client, err := r.clientOrderParty(ctx, sourceID)
		if err != nil {
			return Document{}, err
		}
		return OrderConfirmationDocument(order, lines, client)
	case KindPurchaseOrder:
		order, lines, err := r.procurement.GetOrder(ctx, sourceID)
		if err != nil {
			return Document{}, err
		}
		supplier, err := r.directory.GetSupplier(ctx, order.SupplierID)
		if err != nil {
			return Document{}, err
		}
		return PurchaseOrderDocument(order, lines, supplier)
	case KindDeliveryNote:
		order, lines, client, err := r.clientOrderParty(ctx, sourceID)
		if err != nil {
			return Document{}, err
		}
		return DeliveryNoteDocument(refs.Random(refs.PrefixDelivery), order, lines, client)
	case KindInvoice:
		order, lines, client, err := r.clientOrderParty(ctx, sourceID)
		if err != nil {
			return Document{}, err
		}
		return InvoiceDocument(refs.Random(refs.PrefixInvoice), order, lines, client)
	default:
		return Document{}, fmt.Errorf("documents: unknown kind %q: %w", kind, shared.ErrInvalidArgument)
	}
}

func (r *Renderer) clientOrderParty(ctx context.Context, orderID int64) (sales.ClientOrder, []sales.OrderLine, masterdata.Client, error) {
	order, lines, err := r.sales.GetOrder(ctx, orderID)
	if err != nil {
		return sales.ClientOrder{}, nil, masterdata.Client{}, err
	}
	client, err := r.directory.GetClient(ctx, order.ClientID)
	if err != nil {
		return sales.ClientOrder{}, nil, masterdata.Client{}, err
	}
	return order, lines, client, nil
}

// RenderToFile builds a document, converts it through Gotenberg and writes
// the PDF under the output directory. It returns the written path.
func (r *Renderer) RenderToFile(ctx context.Context, kind string, sourceID int64) (string, error) {
	doc, err := r.Build(ctx, kind, sourceID)
	if err != nil {
		return "", err
	}
	pdf, err := r.client.RenderPDF(ctx, doc)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(r.outputDir, doc.Filename)
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", err
	}
	r.logger.Info("document rendered", slog.String("kind", kind), slog.Int64("source", sourceID), slog.String("path", path))
	return path, nil
}
