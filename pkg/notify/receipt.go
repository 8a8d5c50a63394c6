package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

const receiptSubject = "Thank You for Your Purchase!"

// qrContentID is the inline attachment name referenced by the template.
const qrContentID = "receipt-qr.png"

var receiptTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Thank you for your purchase</h2>
  <p>Wallet <strong>{{.Wallet}}</strong> bought:</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><th align="left">Token</th><th align="right">Amount</th></tr>
    {{- range .Lines}}
    <tr><td>{{.TokenID}}</td><td align="right">{{.Amount}}</td></tr>
    {{- end}}
  </table>
  <p>Total paid: <strong>{{.TotalPrice}}</strong></p>
  <p>Transaction: <code>{{.TxHash}}</code></p>
  {{- if .ExplorerURL}}
  <p><a href="{{.ExplorerURL}}">View transaction</a></p>
  {{- end}}
  <p>Scan to view the archived record:</p>
  <img src="cid:{{.QRContentID}}" alt="{{.ArchiveURL}}" width="200" height="200">
  <p><a href="{{.ArchiveURL}}">{{.ArchiveURL}}</a></p>
</body>
</html>
`))

type receiptLine struct {
	TokenID uint64
	Amount  uint64
}

type receiptView struct {
	Wallet      string
	Lines       []receiptLine
	TotalPrice  string
	TxHash      string
	ExplorerURL string
	ArchiveURL  string
	QRContentID string
}

// RenderReceipt produces the HTML body for n.
func RenderReceipt(n Notice) (string, error) {
	if len(n.TokenIDs) != len(n.Amounts) {
		return "", fmt.Errorf("receipt: %d tokens but %d amounts", len(n.TokenIDs), len(n.Amounts))
	}
	view := receiptView{
		Wallet:      n.Buyer.Short(),
		TotalPrice:  n.TotalPrice,
		TxHash:      n.TxHash,
		ExplorerURL: n.ExplorerURL,
		ArchiveURL:  n.ArchiveURL,
		QRContentID: qrContentID,
	}
	for i, id := range n.TokenIDs {
		view.Lines = append(view.Lines, receiptLine{TokenID: id, Amount: n.Amounts[i]})
	}

	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	return buf.String(), nil
}
