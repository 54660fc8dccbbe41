package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tradewind-ai/tradewind/internal/domain"
	"github.com/tradewind-ai/tradewind/internal/testutil"
)

// TestCompleteAgainstRecordedUpstream replays a recorded upstream exchange.
// Record a fresh cassette with:
//
//	VCR_MODE=record DEEPSEEK_API_KEY=sk-... go test -run RecordedUpstream ./internal/provider
func TestCompleteAgainstRecordedUpstream(t *testing.T) {
	cassette := filepath.Join("testdata", "fixtures", "deepseek_chat.yaml")
	if _, err := os.Stat(cassette); os.IsNotExist(err) && os.Getenv("VCR_MODE") != "record" {
		t.Skipf("no cassette at %s; run with VCR_MODE=record to create one", cassette)
	}

	r, cleanup := testutil.NewVCRRecorder(t, "deepseek_chat")
	defer cleanup()

	client := New("deepseek", "https://api.deepseek.com/v1", os.Getenv("DEEPSEEK_API_KEY"), "deepseek-chat",
		WithHTTPClient(testutil.VCRHTTPClient(r)))

	result := client.Complete(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "Reply with the single word: pong"},
	}, domain.CompletionOptions{})

	if !result.Success {
		t.Fatalf("completion failed: %s", result.Error)
	}
	if result.Content == "" {
		t.Error("expected non-empty content")
	}
	if result.Model != "deepseek" {
		t.Errorf("model tag: got %q", result.Model)
	}
}
