package pdf

import "context"

type LineItem struct {
	Description string
	Qty         int64
	UnitPrice   string
	Amount      string
}

type InvoiceData struct {
	ShopName      string
	ShopAddress   string
	ShopPhone     string
	InvoiceNumber string
	IssueDate     string
	DueDate       string
	Status        string

	BillToName    string
	BillToAddress string
	BillToEmail   string

	Items []LineItem

	Subtotal  string
	Tax       string
	Total     string
	AmountDue string
}

type ReceiptData struct {
	InvoiceData
	DatePaid string
	Method   string
}

type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

type NoopProvider struct{}

func (p *NoopProvider) GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error) {
	return nil, nil
}

func (p *NoopProvider) GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	return nil, nil
}
