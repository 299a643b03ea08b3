package enums

import "testing"

func TestParseOutboxStatus(t *testing.T) {
	cases := map[string]OutboxStatus{
		"PENDING":  OutboxStatusPending,
		"sent":     OutboxStatusSent,
		" Failed ": OutboxStatusFailed,
	}
	for raw, want := range cases {
		got, err := ParseOutboxStatus(raw)
		if err != nil {
			t.Fatalf("ParseOutboxStatus(%q) error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseOutboxStatus(%q) = %q, want %q", raw, got, want)
		}
	}
	if _, err := ParseOutboxStatus("PUBLISHED"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestOutboxStatusTerminal(t *testing.T) {
	if OutboxStatusPending.IsTerminal() {
		t.Fatal("pending must not be terminal")
	}
	if !OutboxStatusSent.IsTerminal() || !OutboxStatusFailed.IsTerminal() {
		t.Fatal("sent and failed are terminal")
	}
}

func TestOutboxFailureReasonIsValid(t *testing.T) {
	if !OutboxFailurePublish.IsValid() || !OutboxFailureSerialization.IsValid() {
		t.Fatal("expected known reasons to be valid")
	}
	if OutboxFailureReason("timeout").IsValid() {
		t.Fatal("unexpected reason accepted")
	}
}
