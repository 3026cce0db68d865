package client

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	err := backendErr(KindSubmission, "queue prompt", errors.New("rejected"))
	if KindOf(err) != KindSubmission {
		t.Errorf("expected submission kind, got %q", KindOf(err))
	}

	wrapped := fmt.Errorf("workflow submission failed: %w", err)
	if KindOf(wrapped) != KindSubmission {
		t.Errorf("expected kind to survive wrapping, got %q", KindOf(wrapped))
	}

	if KindOf(errors.New("plain")) != "" {
		t.Error("expected empty kind for untagged error")
	}
}

func TestWaitTimeout(t *testing.T) {
	err := WaitTimeout("workflow wait", 90*time.Second)

	if !IsTimeout(err) {
		t.Error("expected IsTimeout true for a wait timeout")
	}
	if !strings.Contains(err.Error(), "workflow wait") {
		t.Errorf("expected op in message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "1m30s") {
		t.Errorf("expected wait duration in message, got %q", err.Error())
	}
}

func TestIsTimeout_OtherKinds(t *testing.T) {
	if IsTimeout(backendErr(KindConnectivity, "health", errors.New("refused"))) {
		t.Error("connectivity errors must not classify as timeouts")
	}
	if IsTimeout(errors.New("plain")) {
		t.Error("untagged errors must not classify as timeouts")
	}
}

func TestBackendError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := backendErr(KindIO, "save artifact", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the wrapped cause")
	}
}
