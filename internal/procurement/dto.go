package procurement

import "time"

type createOrderRequest struct {
	SupplierID    int64             `json:"supplier_id" validate:"required,gt=0"`
	ClientOrderID int64             `json:"client_order_id,omitempty" validate:"omitempty,gt=0"`
	Reference     string            `json:"reference,omitempty"`
	OrderDate     string            `json:"order_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Currency      string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	Notes         string            `json:"notes,omitempty"`
	Lines         []lineItemRequest `json:"lines" validate:"required,min=1,dive"`
}

type lineItemRequest struct {
	ClientID        int64  `json:"client_id" validate:"required,gt=0"`
	ArticleCode     string `json:"article_code,omitempty"`
	CaisseLengthMM  int    `json:"caisse_length_mm,omitempty" validate:"omitempty,gt=0"`
	CaisseWidthMM   int    `json:"caisse_width_mm,omitempty" validate:"omitempty,gt=0"`
	CaisseHeightMM  int    `json:"caisse_height_mm,omitempty" validate:"omitempty,gt=0"`
	PlaqueWidthMM   int    `json:"plaque_width_mm" validate:"required,gt=0"`
	PlaqueLengthMM  int    `json:"plaque_length_mm" validate:"required,gt=0"`
	PlaqueFlapMM    int    `json:"plaque_flap_mm,omitempty" validate:"omitempty,gte=0"`
	UnitPrice       string `json:"unit_price,omitempty"`
	OrderedQuantity int    `json:"ordered_quantity" validate:"gte=0"`
}

type recordDeliveryRequest struct {
	ReceivedQty    int    `json:"received_qty" validate:"required,gt=0"`
	DeliveryDate   string `json:"delivery_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	BatchReference string `json:"batch_reference,omitempty"`
	QualityNotes   string `json:"quality_notes,omitempty"`
}

type recordReturnRequest struct {
	LineItemID int64  `json:"line_item_id,omitempty" validate:"omitempty,gt=0"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	Reason     string `json:"reason,omitempty"`
}

type orderResponse struct {
	ID            int64              `json:"id"`
	SupplierID    int64              `json:"supplier_id"`
	ClientOrderID int64              `json:"client_order_id,omitempty"`
	Reference     string             `json:"reference"`
	OrderDate     string             `json:"order_date"`
	Status        OrderStatus        `json:"status"`
	Confirmed     bool               `json:"confirmed"`
	Currency      string             `json:"currency"`
	Notes         string             `json:"notes,omitempty"`
	Lines         []lineItemResponse `json:"lines,omitempty"`
}

type lineItemResponse struct {
	ID              int64      `json:"id"`
	LineNumber      int        `json:"line_number"`
	ClientID        int64      `json:"client_id"`
	ArticleCode     string     `json:"article_code,omitempty"`
	CaisseLengthMM  int        `json:"caisse_length_mm,omitempty"`
	CaisseWidthMM   int        `json:"caisse_width_mm,omitempty"`
	CaisseHeightMM  int        `json:"caisse_height_mm,omitempty"`
	PlaqueWidthMM   int        `json:"plaque_width_mm"`
	PlaqueLengthMM  int        `json:"plaque_length_mm"`
	PlaqueFlapMM    int        `json:"plaque_flap_mm"`
	UnitPrice       string     `json:"unit_price"`
	OrderedQuantity int        `json:"ordered_quantity"`
	TotalReceived   int        `json:"total_received"`
	Status          LineStatus `json:"status"`
}

type deliveryResponse struct {
	ID             int64  `json:"id"`
	LineItemID     int64  `json:"line_item_id"`
	DeliveryDate   string `json:"delivery_date"`
	ReceivedQty    int    `json:"received_qty"`
	BatchReference string `json:"batch_reference,omitempty"`
	QualityNotes   string `json:"quality_notes,omitempty"`
}

type returnResponse struct {
	ID              int64  `json:"id"`
	SupplierOrderID int64  `json:"supplier_order_id"`
	LineItemID      int64  `json:"line_item_id"`
	ReturnDate      string `json:"return_date"`
	Quantity        int    `json:"quantity"`
	Reason          string `json:"reason,omitempty"`
}

const dateLayout = "2006-01-02"

func toOrderResponse(order SupplierOrder, lines []LineItem) orderResponse {
	resp := orderResponse{
		ID:            order.ID,
		SupplierID:    order.SupplierID,
		ClientOrderID: order.ClientOrderID,
		Reference:     order.Reference,
		OrderDate:     order.OrderDate.Format(dateLayout),
		Status:        order.Status,
		Confirmed:     order.Confirmed,
		Currency:      order.Currency,
		Notes:         order.Notes,
	}
	for _, line := range lines {
		resp.Lines = append(resp.Lines, toLineResponse(line))
	}
	return resp
}

func toLineResponse(line LineItem) lineItemResponse {
	return lineItemResponse{
		ID:              line.ID,
		LineNumber:      line.LineNumber,
		ClientID:        line.ClientID,
		ArticleCode:     line.ArticleCode,
		CaisseLengthMM:  line.CaisseLengthMM,
		CaisseWidthMM:   line.CaisseWidthMM,
		CaisseHeightMM:  line.CaisseHeightMM,
		PlaqueWidthMM:   line.PlaqueWidthMM,
		PlaqueLengthMM:  line.PlaqueLengthMM,
		PlaqueFlapMM:    line.PlaqueFlapMM,
		UnitPrice:       line.UnitPrice.StringFixed(2),
		OrderedQuantity: line.OrderedQuantity,
		TotalReceived:   line.TotalReceived,
		Status:          line.Status,
	}
}

func toDeliveryResponse(d MaterialDelivery) deliveryResponse {
	return deliveryResponse{
		ID:             d.ID,
		LineItemID:     d.LineItemID,
		DeliveryDate:   d.DeliveryDate.Format(dateLayout),
		ReceivedQty:    d.ReceivedQty,
		BatchReference: d.BatchReference,
		QualityNotes:   d.QualityNotes,
	}
}

func toReturnResponse(ret Return) returnResponse {
	return returnResponse{
		ID:              ret.ID,
		SupplierOrderID: ret.SupplierOrderID,
		LineItemID:      ret.LineItemID,
		ReturnDate:      ret.ReturnDate.Format(dateLayout),
		Quantity:        ret.Quantity,
		Reason:          ret.Reason,
	}
}

func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
