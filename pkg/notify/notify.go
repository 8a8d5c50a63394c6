// Package notify delivers purchase receipts.
package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/Mindburn-Labs/productledger/pkg/wallet"
)

// Notice describes a completed purchase.
type Notice struct {
	Email       string
	Buyer       wallet.Identity
	TxHash      string
	ArchiveURL  string
	TokenIDs    []uint64
	Amounts     []uint64
	TotalPrice  string
	ExplorerURL string // optional link to the transaction
}

// Notifier sends receipts. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, n Notice) error
}

// LogNotifier only logs; used when no mail server is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: slog.Default().With("component", "notify")}
}

func (l *LogNotifier) Send(ctx context.Context, n Notice) error {
	l.logger.InfoContext(ctx, "purchase receipt",
		"email", n.Email,
		"buyer", n.Buyer.Short(),
		"tx_hash", n.TxHash,
		"tokens", n.TokenIDs,
	)
	return nil
}

// QRPNG renders content as a 256px PNG QR code.
func QRPNG(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	return png, nil
}

// QRDataURL renders content as an inline data: URL.
func QRDataURL(content string) (string, error) {
	png, err := QRPNG(content)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
