package notify

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	"github.com/shopspring/decimal"

	"serotonyl.ru/referral-ledger/internal/ledger"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*telego.SendMessageParams
}

func (f *fakeSender) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	return &telego.Message{}, nil
}

func TestWithdrawalRequestedBroadcasts(t *testing.T) {
	fs := &fakeSender{}
	n := &Telegram{bot: fs, chatIDs: []int64{1, 2}}

	n.WithdrawalRequested(context.Background(), &ledger.WithdrawalRequest{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		Amount:   decimal.RequireFromString("50"),
		Currency: "BRL",
		Payout:   ledger.PayoutDescriptor{KeyType: ledger.PayoutKeyEmail, Key: "ana@example.com", HolderName: "Ana <Silva>"},
	})

	if len(fs.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(fs.sent))
	}
	text := fs.sent[0].Text
	if !strings.Contains(text, "50.00 BRL") {
		t.Errorf("amount missing: %s", text)
	}
	if strings.Contains(text, "ana@example.com") {
		t.Error("payout key must be masked")
	}
	if !strings.Contains(text, "Ana &lt;Silva&gt;") {
		t.Error("holder name must be escaped")
	}
}

func TestSweepFinishedSkipsEmptyRuns(t *testing.T) {
	fs := &fakeSender{}
	n := &Telegram{bot: fs, chatIDs: []int64{1}}

	n.SweepFinished(context.Background(), SweepSummary{Skipped: 3})
	if len(fs.sent) != 0 {
		t.Fatal("nothing changed, nothing to send")
	}

	n.SweepFinished(context.Background(), SweepSummary{Promoted: 1, Cancelled: 3})
	if len(fs.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fs.sent))
	}
	if text := fs.sent[0].Text; !strings.Contains(text, "1 комиссия") || !strings.Contains(text, "3 комиссии") {
		t.Errorf("counts missing: %s", text)
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey("123"); got != "123" {
		t.Errorf("short key: %q", got)
	}
	if got := maskKey("12345678"); got != "••••5678" {
		t.Errorf("got %q", got)
	}
}
