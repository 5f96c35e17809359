package bus

import (
	"context"
	"errors"
	"testing"
)

func TestCallRepliesOnce(t *testing.T) {
	call := NewCall(":1.1", "/obj", PlaybackManagerIface, RequestMuteMethod, true)

	if _, _, ok := call.Result(); ok {
		t.Fatal("fresh call reports a reply")
	}
	if err := call.Return("Play"); err != nil {
		t.Fatalf("first Return: %v", err)
	}
	if err := call.Fail(ErrorFailed, "late"); !errors.Is(err, ErrAlreadyReplied) {
		t.Fatalf("second reply error = %v, want ErrAlreadyReplied", err)
	}
	if err := call.Return("Stop"); !errors.Is(err, ErrAlreadyReplied) {
		t.Fatalf("third reply error = %v, want ErrAlreadyReplied", err)
	}

	body, dbusErr, ok := call.Result()
	if !ok || dbusErr != nil {
		t.Fatalf("Result() = %v, %v, %v", body, dbusErr, ok)
	}
	if len(body) != 1 || body[0] != "Play" {
		t.Errorf("body = %v, want [Play]", body)
	}
}

func TestCallFailDefaultsName(t *testing.T) {
	call := NewCall(":1.1", "/obj", PlaybackManagerIface, RequestMuteMethod)
	call.Fail("", "failed to parse set mute message")

	_, dbusErr, ok := call.Result()
	if !ok || dbusErr == nil {
		t.Fatal("expected an error reply")
	}
	if dbusErr.Name != ErrorFailed {
		t.Errorf("error name = %q, want %q", dbusErr.Name, ErrorFailed)
	}
	if dbusErr.Error() != "failed to parse set mute message" {
		t.Errorf("description = %q", dbusErr.Error())
	}
}

func TestCallWaitCancelled(t *testing.T) {
	call := NewCall(":1.1", "/obj", PlaybackManagerIface, RequestStateMethod)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, dbusErr := call.Wait(ctx)
	if dbusErr == nil || dbusErr.Name != ErrorFailed {
		t.Fatalf("Wait on cancelled context = %v, want Failed", dbusErr)
	}
	if err := call.Return("Play"); !errors.Is(err, ErrAlreadyReplied) {
		t.Errorf("reply after shutdown = %v, want ErrAlreadyReplied", err)
	}
}
